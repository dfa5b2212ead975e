package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/taskman/internal/model"
)

// taskColumns はタスク取得クエリで共通に使用するカラムリスト。
const taskColumns = `id, owner_id, title, description, status, due_date, created_at, updated_at`

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_id, title, description, status, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.OwnerID, task.Title, task.Description, task.Status,
		task.DueDate, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return wrapDBError("failed to insert task", err)
	}
	return nil
}

// FindByOwner は指定所有者のタスクを取得する。
// 存在しない、または所有者が異なる場合はnilを返す（両者は区別されない）。
func (r *PostgresTaskRepo) FindByOwner(ctx context.Context, taskID, ownerID string) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND owner_id = $2`,
		taskID, ownerID,
	)
	return scanTask(row)
}

// ListByOwner は所有者のタスク一覧をフィルタ付きで返す。
// created_at昇順、同時刻のタスクはid昇順で決定的に並ぶ。
func (r *PostgresTaskRepo) ListByOwner(ctx context.Context, ownerID string, filter model.TaskFilter) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1`
	args := []any{ownerID}

	if filter == model.TaskFilterPending || filter == model.TaskFilterDone {
		query += ` AND status = $2`
		args = append(args, model.TaskStatus(filter))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("failed to list tasks", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task := &model.Task{}
		if err := rows.Scan(
			&task.ID, &task.OwnerID, &task.Title, &task.Description,
			&task.Status, &task.DueDate, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, wrapDBError("failed to scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("failed to iterate tasks", err)
	}

	return tasks, nil
}

// CountsByOwner は所有者のステータス別タスク件数を返す。
func (r *PostgresTaskRepo) CountsByOwner(ctx context.Context, ownerID string) (model.TaskCounts, error) {
	var counts model.TaskCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'pending'),
		        count(*) FILTER (WHERE status = 'done')
		 FROM tasks WHERE owner_id = $1`,
		ownerID,
	).Scan(&counts.Total, &counts.Pending, &counts.Done)
	if err != nil {
		return model.TaskCounts{}, wrapDBError("failed to count tasks", err)
	}
	return counts, nil
}

// ToggleStatus はタスクの状態をpending↔doneで反転する。
// 反転は単一のUPDATE文で行うため、同一タスクへの並行トグルは
// 行ロックで直列化され、更新の取りこぼしは発生しない。
// 対象が無い場合はnilを返す。
func (r *PostgresTaskRepo) ToggleStatus(ctx context.Context, taskID, ownerID string) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE tasks
		 SET status = CASE status WHEN 'pending' THEN 'done' ELSE 'pending' END,
		     updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+taskColumns,
		taskID, ownerID,
	)
	return scanTask(row)
}

// Update はタスクのtitle/description/status/due_dateを更新する。
// 対象が無い場合はnilを返す。owner_idとcreated_atは変更しない。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE tasks
		 SET title = $3, description = $4, status = $5, due_date = $6, updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+taskColumns,
		task.ID, task.OwnerID, task.Title, task.Description, task.Status, task.DueDate,
	)
	return scanTask(row)
}

// DeleteByOwner はタスクを削除する。削除できた場合はtrueを返す。
func (r *PostgresTaskRepo) DeleteByOwner(ctx context.Context, taskID, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND owner_id = $2`,
		taskID, ownerID,
	)
	if err != nil {
		return false, wrapDBError("failed to delete task", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, wrapDBError("failed to get rows affected", err)
	}
	return rowsAffected > 0, nil
}

// scanTask は単一行クエリの結果をTaskに変換する。行が無い場合はnilを返す。
func scanTask(row *sql.Row) (*model.Task, error) {
	task := &model.Task{}
	err := row.Scan(
		&task.ID, &task.OwnerID, &task.Title, &task.Description,
		&task.Status, &task.DueDate, &task.CreatedAt, &task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("failed to scan task", err)
	}
	return task, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
