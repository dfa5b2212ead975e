// Package model はドメインモデルを定義する。
package model

import "time"

// TaskStatus はタスクの状態を表す。
type TaskStatus string

const (
	// TaskStatusPending は未完了のタスクを表す。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusDone は完了済みのタスクを表す。
	TaskStatusDone TaskStatus = "done"
)

// Toggle は未完了と完了済みを反転した状態を返す。
func (s TaskStatus) Toggle() TaskStatus {
	if s == TaskStatusPending {
		return TaskStatusDone
	}
	return TaskStatusPending
}

// Task はユーザーが所有するタスクを表す。
// OwnerIDは作成時に確定し、以後変更されない。
type Task struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Status      TaskStatus
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskFilter はタスク一覧のフィルタ種別を表す。
type TaskFilter string

const (
	// TaskFilterAll は全タスクを表示するフィルタ。
	TaskFilterAll TaskFilter = "all"
	// TaskFilterPending は未完了タスクのみを表示するフィルタ。
	TaskFilterPending TaskFilter = "pending"
	// TaskFilterDone は完了済みタスクのみを表示するフィルタ。
	TaskFilterDone TaskFilter = "done"
)

// Valid はフィルタがサポートされている値かどうかを返す。
func (f TaskFilter) Valid() bool {
	switch f {
	case TaskFilterAll, TaskFilterPending, TaskFilterDone:
		return true
	default:
		return false
	}
}

// TaskCounts はステータスごとのタスク件数を表す。
// ダッシュボードのフィルタボタンに表示するための集計値。
type TaskCounts struct {
	Total   int
	Pending int
	Done    int
}
