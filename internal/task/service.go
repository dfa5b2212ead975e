// Package task はタスク管理のドメインロジックを提供する。
// 全ての操作は認証済みユーザー（所有者）のIDにスコープされる。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// maxTitleLength はタスクタイトルの最大長。
const maxTitleLength = 200

// Recorder はタスク操作のメトリクス記録インターフェース。
type Recorder interface {
	RecordTaskCreated()
	RecordTaskToggled()
	RecordTaskDeleted()
}

// Service はタスク管理のサービス層。
// HTTPレイヤに公開される唯一の呼び出し面であり、所有権の検査は
// リポジトリのクエリ条件として常に適用される。
type Service struct {
	taskRepo repository.TaskRepository
	recorder Recorder // nilの場合は記録しない
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(taskRepo repository.TaskRepository, recorder Recorder) *Service {
	return &Service{
		taskRepo: taskRepo,
		recorder: recorder,
	}
}

// Create は新しいタスクをpending状態で作成する。
// タイトルが空の場合はINVALID_INPUTを返す。
func (s *Service) Create(ctx context.Context, ownerID, title, description string, dueDate *time.Time) (*model.Task, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}

	now := time.Now()
	task := &model.Task{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Status:      model.TaskStatusPending,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordTaskCreated()
	}
	slog.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("user_id", ownerID),
	)

	return task, nil
}

// List は所有者のタスク一覧を返す。created_at昇順、同時刻はid昇順。
// filterが空の場合は全件を返す。サポート外のfilterはINVALID_INPUT。
func (s *Service) List(ctx context.Context, ownerID string, filter model.TaskFilter) ([]*model.Task, error) {
	if filter == "" {
		filter = model.TaskFilterAll
	}
	if !filter.Valid() {
		return nil, model.NewInvalidInputError(fmt.Sprintf("無効なフィルタです: %s", filter))
	}

	tasks, err := s.taskRepo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// Counts は所有者のステータス別タスク件数を返す。
func (s *Service) Counts(ctx context.Context, ownerID string) (model.TaskCounts, error) {
	counts, err := s.taskRepo.CountsByOwner(ctx, ownerID)
	if err != nil {
		return model.TaskCounts{}, fmt.Errorf("タスク件数の取得に失敗しました: %w", err)
	}
	return counts, nil
}

// Get は所有者のタスクを1件取得する。
// 存在しない、または所有者が異なる場合はTASK_NOT_FOUND。
func (s *Service) Get(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.FindByOwner(ctx, taskID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return task, nil
}

// Toggle はタスクの状態をpending↔doneで反転し、更新後のタスクを返す。
// 他人のタスクと存在しないタスクはどちらもTASK_NOT_FOUNDになる。
func (s *Service) Toggle(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.ToggleStatus(ctx, taskID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("タスク状態の更新に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	if s.recorder != nil {
		s.recorder.RecordTaskToggled()
	}
	slog.Info("task status toggled",
		slog.String("task_id", taskID),
		slog.String("user_id", ownerID),
		slog.String("status", string(task.Status)),
	)

	return task, nil
}

// Update はタスクのtitle/description/status/due_dateを更新する。
// 所有者の変更はできない。not-found時の挙動はToggleと同じ。
func (s *Service) Update(ctx context.Context, ownerID, taskID, title, description string, status model.TaskStatus, dueDate *time.Time) (*model.Task, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if status != model.TaskStatusPending && status != model.TaskStatusDone {
		return nil, model.NewInvalidInputError(fmt.Sprintf("無効なステータスです: %s", status))
	}

	updated, err := s.taskRepo.Update(ctx, &model.Task{
		ID:          taskID,
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Status:      status,
		DueDate:     dueDate,
	})
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	return updated, nil
}

// Delete はタスクを削除する。削除は冪等ではなく、
// 既に削除済みのタスクへの2回目の削除はTASK_NOT_FOUNDになる。
func (s *Service) Delete(ctx context.Context, ownerID, taskID string) error {
	deleted, err := s.taskRepo.DeleteByOwner(ctx, taskID, ownerID)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewTaskNotFoundError(taskID)
	}

	if s.recorder != nil {
		s.recorder.RecordTaskDeleted()
	}
	slog.Info("task deleted",
		slog.String("task_id", taskID),
		slog.String("user_id", ownerID),
	)

	return nil
}

// validateTitle はタスクタイトルを検証する。
func validateTitle(title string) error {
	if title == "" {
		return model.NewInvalidInputError("タイトルは必須です")
	}
	if len(title) > maxTitleLength {
		return model.NewInvalidInputError(fmt.Sprintf("タイトルは%d文字以内で指定してください", maxTitleLength))
	}
	return nil
}
