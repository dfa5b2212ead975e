// Package session はセッショントークンの発行・検証・失効を提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// Manager はセッション管理のサービス層。
// トークンは暗号乱数から生成した不透明な識別子で、固定TTLで失効する。
type Manager struct {
	repo repository.SessionRepository
	ttl  time.Duration
}

// NewManager はManagerを生成する。ttlはセッションの有効期間。
func NewManager(repo repository.SessionRepository, ttl time.Duration) *Manager {
	return &Manager{
		repo: repo,
		ttl:  ttl,
	}
}

// Create は指定ユーザーのセッションを発行し永続化する。
func (m *Manager) Create(ctx context.Context, userID string) (*model.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Resolve はトークンに紐付くユーザーIDを返す。
// 未検出はSESSION_NOT_FOUND、期限切れはSESSION_EXPIREDの型付きエラーを返す。
// 呼び出し側が再ログイン誘導と未認証扱いを選択できるよう、両者は区別される。
// 期限切れレコードはこの時点で遅延削除する。
func (m *Manager) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", model.NewSessionNotFoundError()
	}

	session, err := m.repo.FindByToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return "", model.NewSessionNotFoundError()
	}

	if !time.Now().Before(session.ExpiresAt) {
		// 遅延パージ。削除失敗は検証結果に影響しないためログのみ。
		if err := m.repo.DeleteByToken(ctx, token); err != nil {
			slog.Warn("failed to purge expired session",
				slog.String("error", err.Error()),
			)
		}
		return "", model.NewSessionExpiredError()
	}

	return session.UserID, nil
}

// Invalidate はセッションを失効させる。
// 存在しないトークンの失効はエラーにならない（冪等）。
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.repo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// InvalidateAllForUser は指定ユーザーの全セッションを失効させる。
func (m *Manager) InvalidateAllForUser(ctx context.Context, userID string) error {
	if err := m.repo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// generateToken は暗号的に安全なセッショントークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
