package auth

import "golang.org/x/crypto/bcrypt"

// dummyPasswordHash はユーザーが存在しない場合の照合に使うbcryptハッシュ。
// 存在しないユーザー名に対してもハッシュ照合と同等の時間を消費することで、
// レスポンスタイムからユーザーの存在有無が推測されることを防ぐ。
// 照合結果は常に破棄されるため、元の平文に意味はない。
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashPassword はパスワードのbcryptハッシュを生成する。
// ソルトはbcryptがハッシュごとに暗号乱数で生成し、ハッシュ文字列に埋め込む。
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword はパスワードがハッシュと一致するかを検証する。
// bcryptの比較は定数時間で行われる。
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// burnPasswordCheck は存在しないユーザーへのログイン試行時に
// ダミーハッシュとの照合を行い、タイミング差を均す。結果は使用しない。
func burnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
}
