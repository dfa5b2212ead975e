package auth

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/session"
)

// --- モック ---

type mockUserRepo struct {
	createFn         func(ctx context.Context, user *model.User) error
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByUsernameFn func(ctx context.Context, username string) (*model.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

// memorySessionRepo はテスト用のインメモリセッションリポジトリ。
type memorySessionRepo struct {
	sessions map[string]*model.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *memorySessionRepo) Create(ctx context.Context, s *model.Session) error {
	m.sessions[s.Token] = s
	return nil
}
func (m *memorySessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	return m.sessions[token], nil
}
func (m *memorySessionRepo) DeleteByToken(ctx context.Context, token string) error {
	delete(m.sessions, token)
	return nil
}
func (m *memorySessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	for token, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, token)
		}
	}
	return nil
}
func (m *memorySessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var deleted int64
	for token, s := range m.sessions {
		if !time.Now().Before(s.ExpiresAt) {
			delete(m.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

var _ repository.SessionRepository = (*memorySessionRepo)(nil)

// テスト用のデフォルト設定。bcryptコストは最小値にして高速化する。
func testServiceConfig() ServiceConfig {
	return ServiceConfig{
		BcryptCost:        bcrypt.MinCost,
		MinPasswordLength: 6,
	}
}

func newTestService(userRepo repository.UserRepository) *Service {
	sessions := session.NewManager(newMemorySessionRepo(), time.Hour)
	return NewService(userRepo, sessions, nil, testServiceConfig())
}

// --- テスト ---

// Registerが平文パスワードではなくbcryptハッシュを保存することを検証
func TestService_Register(t *testing.T) {
	var saved *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			saved = user
			return nil
		},
	}
	svc := newTestService(userRepo)

	userID, err := svc.Register(context.Background(), "demo", "demo@example.com", "demo123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if userID == "" {
		t.Fatal("expected non-empty user ID")
	}
	if saved == nil {
		t.Fatal("expected user to be persisted")
	}
	if saved.PasswordHash == "demo123" {
		t.Error("password must not be stored as plaintext")
	}
	if !strings.HasPrefix(saved.PasswordHash, "$2a$") {
		t.Errorf("expected bcrypt hash, got %q", saved.PasswordHash)
	}
	if !VerifyPassword(saved.PasswordHash, "demo123") {
		t.Error("stored hash should verify against the original password")
	}
}

// 同一パスワードでもユーザーごとにハッシュが異なること（ソルトの検証）
func TestService_Register_UniqueSaltPerUser(t *testing.T) {
	var hashes []string
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			hashes = append(hashes, user.PasswordHash)
			return nil
		},
	}
	svc := newTestService(userRepo)

	if _, err := svc.Register(context.Background(), "alice", "alice@example.com", "secret123"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if _, err := svc.Register(context.Background(), "bob", "bob@example.com", "secret123"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if len(hashes) != 2 {
		t.Fatalf("expected 2 hashes, got %d", len(hashes))
	}
	if hashes[0] == hashes[1] {
		t.Error("same password must produce different hashes (per-user salt)")
	}
}

// 入力検証エラーがINVALID_INPUTになることを検証
func TestService_Register_InvalidInput(t *testing.T) {
	svc := newTestService(&mockUserRepo{})

	cases := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"空のユーザー名", "", "a@example.com", "secret123"},
		{"空白のみのユーザー名", "   ", "a@example.com", "secret123"},
		{"長すぎるユーザー名", strings.Repeat("x", 81), "a@example.com", "secret123"},
		{"空のメールアドレス", "alice", "", "secret123"},
		{"不正なメールアドレス", "alice", "not-an-email", "secret123"},
		{"短すぎるパスワード", "alice", "a@example.com", "12345"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.username, tc.email, tc.password)
			if !model.HasCode(err, model.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

// ユーザー名重複がUSERNAME_TAKENとして伝播することを検証
func TestService_Register_UsernameTaken(t *testing.T) {
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return model.NewUsernameTakenError(user.Username)
		},
	}
	svc := newTestService(userRepo)

	_, err := svc.Register(context.Background(), "demo", "demo@example.com", "demo123")
	if !model.HasCode(err, model.ErrCodeUsernameTaken) {
		t.Errorf("expected USERNAME_TAKEN, got %v", err)
	}
}

// 登録した認証情報でログインでき、トークンが登録ユーザーに解決されることを検証
func TestService_RegisterThenLogin(t *testing.T) {
	var stored *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			stored = user
			return nil
		},
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			if stored != nil && stored.Username == username {
				return stored, nil
			}
			return nil, nil
		},
	}
	sessionRepo := newMemorySessionRepo()
	sessions := session.NewManager(sessionRepo, time.Hour)
	svc := NewService(userRepo, sessions, nil, testServiceConfig())

	userID, err := svc.Register(context.Background(), "demo", "demo@example.com", "demo123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	sess, err := svc.Login(context.Background(), "demo", "demo123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	resolved, err := sessions.Resolve(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolved != userID {
		t.Errorf("resolved user ID = %q, want %q", resolved, userID)
	}
}

// パスワード不一致がINVALID_CREDENTIALSになることを検証
func TestService_Login_WrongPassword(t *testing.T) {
	hash, _ := HashPassword("correct-password", bcrypt.MinCost)
	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{ID: "user-1", Username: username, PasswordHash: hash}, nil
		},
	}
	svc := newTestService(userRepo)

	_, err := svc.Login(context.Background(), "demo", "wrong-password")
	if !model.HasCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("expected INVALID_CREDENTIALS, got %v", err)
	}
}

// 存在しないユーザーでも同一のINVALID_CREDENTIALSが返ることを検証
func TestService_Login_UnknownUser(t *testing.T) {
	svc := newTestService(&mockUserRepo{})

	_, err := svc.Login(context.Background(), "nobody", "whatever-password")
	if !model.HasCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("expected INVALID_CREDENTIALS, got %v", err)
	}
}

// 「ユーザーが存在する/しない」でログイン失敗の所要時間に大きな差が
// 出ないことを検証する。厳密な等価ではなく有界の分散のみを確認する。
func TestService_Login_TimingVariance(t *testing.T) {
	if testing.Short() {
		t.Skip("タイミング検証は-shortではスキップ")
	}

	// 本番相当のコストで計測する（ダミーハッシュはコスト10のため揃える）
	hash, err := HashPassword("correct-password", 10)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			if username == "existing" {
				return &model.User{ID: "user-1", Username: username, PasswordHash: hash}, nil
			}
			return nil, nil
		},
	}
	sessions := session.NewManager(newMemorySessionRepo(), time.Hour)
	svc := NewService(userRepo, sessions, nil, ServiceConfig{BcryptCost: 10, MinPasswordLength: 6})

	const rounds = 5
	measure := func(username string) time.Duration {
		durations := make([]time.Duration, 0, rounds)
		for i := 0; i < rounds; i++ {
			start := time.Now()
			_, _ = svc.Login(context.Background(), username, "wrong-password")
			durations = append(durations, time.Since(start))
		}
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		return durations[rounds/2] // 中央値
	}

	existing := measure("existing")
	missing := measure("missing")

	diff := existing - missing
	if diff < 0 {
		diff = -diff
	}
	// bcrypt照合1回分（数十ms）に対して十分小さい差であること
	if diff > 100*time.Millisecond {
		t.Errorf("timing difference too large: existing=%v missing=%v", existing, missing)
	}
}

// Logoutがセッションを無効化することを検証
func TestService_Logout(t *testing.T) {
	sessionRepo := newMemorySessionRepo()
	sessions := session.NewManager(sessionRepo, time.Hour)
	svc := NewService(&mockUserRepo{}, sessions, nil, testServiceConfig())

	sess, err := sessions.Create(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := svc.Logout(context.Background(), sess.Token); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	if _, err := sessions.Resolve(context.Background(), sess.Token); !model.HasCode(err, model.ErrCodeSessionNotFound) {
		t.Errorf("expected SESSION_NOT_FOUND after logout, got %v", err)
	}

	// 2回目のログアウトもエラーにならない（冪等）
	if err := svc.Logout(context.Background(), sess.Token); err != nil {
		t.Fatalf("second Logout returned error: %v", err)
	}
}

// GetCurrentUserがセッションからユーザーを取得することを検証
func TestService_GetCurrentUser(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "demo", Email: "demo@example.com"}, nil
		},
	}
	sessionRepo := newMemorySessionRepo()
	sessions := session.NewManager(sessionRepo, time.Hour)
	svc := NewService(userRepo, sessions, nil, testServiceConfig())

	sess, err := sessions.Create(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	user, err := svc.GetCurrentUser(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("GetCurrentUser returned error: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", user.ID, "user-1")
	}
	if user.Username != "demo" {
		t.Errorf("username = %q, want %q", user.Username, "demo")
	}
}

// 期限切れセッションのGetCurrentUserがSESSION_EXPIREDになることを検証
func TestService_GetCurrentUser_ExpiredSession(t *testing.T) {
	sessionRepo := newMemorySessionRepo()
	sessionRepo.sessions["expired"] = &model.Session{
		Token:     "expired",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	sessions := session.NewManager(sessionRepo, time.Hour)
	svc := NewService(&mockUserRepo{}, sessions, nil, testServiceConfig())

	_, err := svc.GetCurrentUser(context.Background(), "expired")
	if !model.HasCode(err, model.ErrCodeSessionExpired) {
		t.Errorf("expected SESSION_EXPIRED, got %v", err)
	}
}
