package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// --- モック ---

// memoryTaskRepo はテスト用のインメモリタスクリポジトリ。
// Postgres実装と同じく、単一タスク操作はowner_idを条件に含み、
// レコード単位の原子性をミューテックスで担保する。
type memoryTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func newMemoryTaskRepo() *memoryTaskRepo {
	return &memoryTaskRepo{tasks: make(map[string]*model.Task)}
}

func (m *memoryTaskRepo) Create(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *memoryTaskRepo) FindByOwner(ctx context.Context, taskID, ownerID string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok || task.OwnerID != ownerID {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

func (m *memoryTaskRepo) ListByOwner(ctx context.Context, ownerID string, filter model.TaskFilter) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Task
	for _, task := range m.tasks {
		if task.OwnerID != ownerID {
			continue
		}
		if filter == model.TaskFilterPending && task.Status != model.TaskStatusPending {
			continue
		}
		if filter == model.TaskFilterDone && task.Status != model.TaskStatusDone {
			continue
		}
		copied := *task
		result = append(result, &copied)
	}
	// created_at昇順、同時刻はid昇順
	for i := 1; i < len(result); i++ {
		for j := i; j > 0; j-- {
			a, b := result[j-1], result[j]
			if a.CreatedAt.After(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.ID > b.ID) {
				result[j-1], result[j] = b, a
			}
		}
	}
	return result, nil
}

func (m *memoryTaskRepo) CountsByOwner(ctx context.Context, ownerID string) (model.TaskCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var counts model.TaskCounts
	for _, task := range m.tasks {
		if task.OwnerID != ownerID {
			continue
		}
		counts.Total++
		if task.Status == model.TaskStatusDone {
			counts.Done++
		} else {
			counts.Pending++
		}
	}
	return counts, nil
}

func (m *memoryTaskRepo) ToggleStatus(ctx context.Context, taskID, ownerID string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok || task.OwnerID != ownerID {
		return nil, nil
	}
	task.Status = task.Status.Toggle()
	task.UpdatedAt = time.Now()
	copied := *task
	return &copied, nil
}

func (m *memoryTaskRepo) Update(ctx context.Context, in *model.Task) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[in.ID]
	if !ok || task.OwnerID != in.OwnerID {
		return nil, nil
	}
	task.Title = in.Title
	task.Description = in.Description
	task.Status = in.Status
	task.DueDate = in.DueDate
	task.UpdatedAt = time.Now()
	copied := *task
	return &copied, nil
}

func (m *memoryTaskRepo) DeleteByOwner(ctx context.Context, taskID, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok || task.OwnerID != ownerID {
		return false, nil
	}
	delete(m.tasks, taskID)
	return true, nil
}

var _ repository.TaskRepository = (*memoryTaskRepo)(nil)

// --- テスト ---

// 作成したタスクがpending状態で一覧に1件だけ現れることを検証
func TestService_CreateAndList(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", "Buy milk", "", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.Status != model.TaskStatusPending {
		t.Errorf("status = %q, want %q", created.Status, model.TaskStatusPending)
	}
	if created.OwnerID != "owner-1" {
		t.Errorf("owner = %q, want %q", created.OwnerID, "owner-1")
	}

	tasks, err := svc.List(ctx, "owner-1", model.TaskFilterAll)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(tasks))
	}
	if tasks[0].ID != created.ID {
		t.Errorf("task ID = %q, want %q", tasks[0].ID, created.ID)
	}
}

// 空タイトルがINVALID_INPUTになることを検証
func TestService_Create_EmptyTitle(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)

	for _, title := range []string{"", "   "} {
		_, err := svc.Create(context.Background(), "owner-1", title, "desc", nil)
		if !model.HasCode(err, model.ErrCodeInvalidInput) {
			t.Errorf("title %q: expected INVALID_INPUT, got %v", title, err)
		}
	}
}

// 一覧がcreated_at昇順、同時刻はid昇順で並ぶことを検証
func TestService_List_Ordering(t *testing.T) {
	repo := newMemoryTaskRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	// 同時刻の2件と、より古い1件を直接投入して並びを固定する
	repo.tasks["bbb"] = &model.Task{ID: "bbb", OwnerID: "owner-1", Title: "second", Status: model.TaskStatusPending, CreatedAt: base}
	repo.tasks["aaa"] = &model.Task{ID: "aaa", OwnerID: "owner-1", Title: "first tie", Status: model.TaskStatusPending, CreatedAt: base}
	repo.tasks["ccc"] = &model.Task{ID: "ccc", OwnerID: "owner-1", Title: "oldest", Status: model.TaskStatusPending, CreatedAt: base.Add(-time.Hour)}

	tasks, err := svc.List(ctx, "owner-1", model.TaskFilterAll)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	gotIDs := []string{}
	for _, task := range tasks {
		gotIDs = append(gotIDs, task.ID)
	}
	wantIDs := []string{"ccc", "aaa", "bbb"}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Fatalf("order = %v, want %v", gotIDs, wantIDs)
		}
	}
}

// ステータスフィルタが機能し、無効なフィルタがINVALID_INPUTになることを検証
func TestService_List_Filter(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", "task A", "", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.Create(ctx, "owner-1", "task B", "", nil); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.Toggle(ctx, "owner-1", created.ID); err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}

	done, err := svc.List(ctx, "owner-1", model.TaskFilterDone)
	if err != nil {
		t.Fatalf("List(done) returned error: %v", err)
	}
	if len(done) != 1 || done[0].ID != created.ID {
		t.Errorf("done filter returned wrong tasks: %v", done)
	}

	pending, err := svc.List(ctx, "owner-1", model.TaskFilterPending)
	if err != nil {
		t.Fatalf("List(pending) returned error: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("len(pending) = %d, want 1", len(pending))
	}

	if _, err := svc.List(ctx, "owner-1", model.TaskFilter("bogus")); !model.HasCode(err, model.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for invalid filter, got %v", err)
	}
}

// 空フィルタが全件扱いになることを検証
func TestService_List_EmptyFilterDefaultsToAll(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "owner-1", "task", "", nil); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	tasks, err := svc.List(ctx, "owner-1", "")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("len(tasks) = %d, want 1", len(tasks))
	}
}

// 2回のトグルで元のステータスに戻ることを検証
func TestService_Toggle_TwiceRestoresStatus(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", "toggle me", "", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	once, err := svc.Toggle(ctx, "owner-1", created.ID)
	if err != nil {
		t.Fatalf("first Toggle returned error: %v", err)
	}
	if once.Status != model.TaskStatusDone {
		t.Errorf("status after first toggle = %q, want %q", once.Status, model.TaskStatusDone)
	}

	twice, err := svc.Toggle(ctx, "owner-1", created.ID)
	if err != nil {
		t.Fatalf("second Toggle returned error: %v", err)
	}
	if twice.Status != created.Status {
		t.Errorf("status after two toggles = %q, want original %q", twice.Status, created.Status)
	}
}

// 他人のタスクへのトグル・削除がTASK_NOT_FOUNDになることを検証。
// 存在しないタスクと同一のエラーであり、存在の探索はできない。
func TestService_CrossOwnerAccessIsNotFound(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", "private task", "", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// 実在するが他人所有
	if _, err := svc.Toggle(ctx, "owner-2", created.ID); !model.HasCode(err, model.ErrCodeTaskNotFound) {
		t.Errorf("cross-owner toggle: expected TASK_NOT_FOUND, got %v", err)
	}
	if err := svc.Delete(ctx, "owner-2", created.ID); !model.HasCode(err, model.ErrCodeTaskNotFound) {
		t.Errorf("cross-owner delete: expected TASK_NOT_FOUND, got %v", err)
	}
	if _, err := svc.Get(ctx, "owner-2", created.ID); !model.HasCode(err, model.ErrCodeTaskNotFound) {
		t.Errorf("cross-owner get: expected TASK_NOT_FOUND, got %v", err)
	}

	// 純粋に存在しないID
	if _, err := svc.Toggle(ctx, "owner-2", "no-such-task"); !model.HasCode(err, model.ErrCodeTaskNotFound) {
		t.Errorf("missing toggle: expected TASK_NOT_FOUND, got %v", err)
	}

	// 他人からの操作後もタスクは無傷
	got, err := svc.Get(ctx, "owner-1", created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Status != model.TaskStatusPending {
		t.Errorf("task status changed by cross-owner access: %q", got.Status)
	}
}

// 削除が冪等でないこと（2回目はTASK_NOT_FOUND）を検証
func TestService_Delete_SecondDeleteFails(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", "delete me", "", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := svc.Delete(ctx, "owner-1", created.ID); err != nil {
		t.Fatalf("first Delete returned error: %v", err)
	}
	if err := svc.Delete(ctx, "owner-1", created.ID); !model.HasCode(err, model.ErrCodeTaskNotFound) {
		t.Errorf("second delete: expected TASK_NOT_FOUND, got %v", err)
	}
}

// Updateがフィールドを更新し、所有者・作成日時を変更しないことを検証
func TestService_Update(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", "old title", "old desc", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	updated, err := svc.Update(ctx, "owner-1", created.ID, "new title", "new desc", model.TaskStatusDone, &due)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Title != "new title" || updated.Description != "new desc" {
		t.Errorf("fields not updated: %+v", updated)
	}
	if updated.Status != model.TaskStatusDone {
		t.Errorf("status = %q, want %q", updated.Status, model.TaskStatusDone)
	}
	if updated.DueDate == nil || !updated.DueDate.Equal(due) {
		t.Errorf("due date = %v, want %v", updated.DueDate, due)
	}
	if updated.OwnerID != "owner-1" {
		t.Errorf("owner changed to %q", updated.OwnerID)
	}
}

// Updateの入力検証を確認
func TestService_Update_InvalidInput(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", "title", "", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.Update(ctx, "owner-1", created.ID, "", "", model.TaskStatusPending, nil); !model.HasCode(err, model.ErrCodeInvalidInput) {
		t.Errorf("empty title: expected INVALID_INPUT, got %v", err)
	}
	if _, err := svc.Update(ctx, "owner-1", created.ID, "ok", "", model.TaskStatus("archived"), nil); !model.HasCode(err, model.ErrCodeInvalidInput) {
		t.Errorf("bad status: expected INVALID_INPUT, got %v", err)
	}
}

// ステータス別件数の集計を検証
func TestService_Counts(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, "owner-1", "one", "", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.Create(ctx, "owner-1", "two", "", nil); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.Create(ctx, "owner-2", "other user", "", nil); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.Toggle(ctx, "owner-1", first.ID); err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}

	counts, err := svc.Counts(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Counts returned error: %v", err)
	}
	if counts.Total != 2 || counts.Pending != 1 || counts.Done != 1 {
		t.Errorf("counts = %+v, want {Total:2 Pending:1 Done:1}", counts)
	}
}

// 並行トグルが直列化され、更新の取りこぼしが起きないことを検証。
// 偶数回のトグル後は必ず元のステータスに戻る。
func TestService_Toggle_ConcurrentTogglesSerialize(t *testing.T) {
	svc := NewService(newMemoryTaskRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", "contended", "", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	const toggles = 100 // 偶数
	var wg sync.WaitGroup
	wg.Add(toggles)
	for i := 0; i < toggles; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.Toggle(ctx, "owner-1", created.ID); err != nil {
				t.Errorf("Toggle returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := svc.Get(ctx, "owner-1", created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Status != model.TaskStatusPending {
		t.Errorf("status after %d toggles = %q, want %q", toggles, got.Status, model.TaskStatusPending)
	}
}
