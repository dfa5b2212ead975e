// Package auth はユーザー登録・認証とセッション発行を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/session"
)

// maxUsernameLength はユーザー名の最大長。
const maxUsernameLength = 80

// Recorder は認証イベントのメトリクス記録インターフェース。
type Recorder interface {
	RecordRegistration()
	RecordLogin(success bool)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BcryptCost        int // bcryptのコストパラメータ
	MinPasswordLength int // パスワードの最小長
}

// Service は認証に関するビジネスロジックを提供する。
// 平文パスワードは検証とハッシュ化にのみ使用し、保存もログ出力もしない。
type Service struct {
	userRepo repository.UserRepository
	sessions *session.Manager
	recorder Recorder // nilの場合は記録しない
	config   ServiceConfig
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessions *session.Manager,
	recorder Recorder,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo: userRepo,
		sessions: sessions,
		recorder: recorder,
		config:   config,
	}
}

// Register は新規ユーザーを登録し、ユーザーIDを返す。
// ユーザー名・メールアドレスの重複はUSERNAME_TAKEN / EMAIL_TAKENで報告される。
// 重複検査と挿入の原子性はリポジトリ（一意インデックス）が保証する。
func (s *Service) Register(ctx context.Context, username, email, password string) (string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := s.validateRegistration(username, email, password); err != nil {
		return "", err
	}

	hash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return "", err
	}

	if s.recorder != nil {
		s.recorder.RecordRegistration()
	}
	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("username", username),
	)

	return user.ID, nil
}

// Login は認証に成功した場合にセッションを発行して返す。
// ユーザー名が存在しない場合もパスワード不一致の場合も同一の
// INVALID_CREDENTIALSを返し、どちらが原因かを漏らさない。
func (s *Service) Login(ctx context.Context, username, password string) (*model.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 存在しないユーザーでもハッシュ照合分の時間を消費する
		burnPasswordCheck(password)
		if s.recorder != nil {
			s.recorder.RecordLogin(false)
		}
		return nil, model.NewInvalidCredentialsError()
	}

	if !VerifyPassword(user.PasswordHash, password) {
		if s.recorder != nil {
			s.recorder.RecordLogin(false)
		}
		return nil, model.NewInvalidCredentialsError()
	}

	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordLogin(true)
	}
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
	)

	return sess, nil
}

// Logout はセッションを破棄する。存在しないトークンでもエラーにならない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Invalidate(ctx, token); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	slog.Info("user logged out",
		slog.String("token_prefix", tokenPrefix(token)),
	)
	return nil
}

// GetCurrentUser はセッショントークンから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewSessionNotFoundError()
	}

	return user, nil
}

// validateRegistration は登録入力を検証する。
func (s *Service) validateRegistration(username, email, password string) error {
	if username == "" {
		return model.NewInvalidInputError("ユーザー名は必須です")
	}
	if len(username) > maxUsernameLength {
		return model.NewInvalidInputError(fmt.Sprintf("ユーザー名は%d文字以内で指定してください", maxUsernameLength))
	}
	if email == "" {
		return model.NewInvalidInputError("メールアドレスは必須です")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.NewInvalidInputError("メールアドレスの形式が正しくありません")
	}
	if len(password) < s.config.MinPasswordLength {
		return model.NewInvalidInputError(fmt.Sprintf("パスワードは%d文字以上で指定してください", s.config.MinPasswordLength))
	}
	return nil
}

// tokenPrefix はログ出力用にトークンの先頭8文字のみを返す。
// トークン全体をログに残さないための措置。
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
