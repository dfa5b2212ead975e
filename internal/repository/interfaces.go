// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/taskman/internal/model"
)

// UserRepository はユーザー認証情報の永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。ユーザー名・メールアドレスの一意性検査と
	// 挿入はデータベースの一意インデックスにより原子的に行われ、
	// 重複時はUSERNAME_TAKEN / EMAIL_TAKENのAPIErrorを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByToken は指定トークンのセッションを取得する。見つからない場合はnilを返す。
	// 期限切れ判定は呼び出し側（セッションマネージャ）の責務であり、
	// 期限切れレコードもそのまま返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)

	// DeleteByToken は指定トークンのセッションを削除する。
	// 存在しないトークンの削除はエラーにならない（冪等）。
	DeleteByToken(ctx context.Context, token string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
// 全ての単一タスク操作はowner_idを条件に含み、所有権検査と存在検査を
// 同一クエリで行う。他人のタスクと存在しないタスクは区別されない。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// FindByOwner は指定所有者のタスクを取得する。
	// 存在しない、または所有者が異なる場合はnilを返す。
	FindByOwner(ctx context.Context, taskID, ownerID string) (*model.Task, error)

	// ListByOwner は所有者のタスク一覧をフィルタ付きで返す。
	// created_at昇順、同時刻はid昇順で決定的に並ぶ。
	ListByOwner(ctx context.Context, ownerID string, filter model.TaskFilter) ([]*model.Task, error)

	// CountsByOwner は所有者のステータス別タスク件数を返す。
	CountsByOwner(ctx context.Context, ownerID string) (model.TaskCounts, error)

	// ToggleStatus はタスクの状態をpending↔doneで反転する。
	// 反転は単一のUPDATE文で行われ、同一タスクへの並行トグルは
	// 行ロックで直列化される。対象が無い場合はnilを返す。
	ToggleStatus(ctx context.Context, taskID, ownerID string) (*model.Task, error)

	// Update はタスクのtitle/description/status/due_dateを更新する。
	// 対象が無い場合はnilを返す。
	Update(ctx context.Context, task *model.Task) (*model.Task, error)

	// DeleteByOwner はタスクを削除する。削除できた場合はtrueを返す。
	// 既に存在しない場合はfalseを返す（2回目の削除は呼び出し側でNotFound扱い）。
	DeleteByOwner(ctx context.Context, taskID, ownerID string) (bool, error)
}
