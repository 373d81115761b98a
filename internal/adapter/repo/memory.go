package repo

import (
	"context"
	"sync"
	"time"

	"imagine/internal/domain"
)

// MemoryTaskRepository is a mutex-guarded in-memory implementation of
// domain.TaskRepository. It backs tests and storage-less development runs;
// the production path uses TaskRepositoryPG.
type MemoryTaskRepository struct {
	mu    sync.Mutex
	tasks map[string]*domain.ImageTask
}

// NewMemoryTaskRepository creates an empty in-memory repository.
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]*domain.ImageTask)}
}

func (r *MemoryTaskRepository) Create(ctx context.Context, task *domain.ImageTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := task.Clone()
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.tasks[cp.ID] = cp
	return nil
}

func (r *MemoryTaskRepository) GetByID(ctx context.Context, id string) (*domain.ImageTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return task.Clone(), nil
}

func (r *MemoryTaskRepository) GetByExternalID(ctx context.Context, provider domain.Provider, externalID string) (*domain.ImageTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, task := range r.tasks {
		if task.Provider == provider && task.ExternalTaskID == externalID && externalID != "" {
			return task.Clone(), nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (r *MemoryTaskRepository) ListInProgress(ctx context.Context, provider domain.Provider) ([]*domain.ImageTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tasks []*domain.ImageTask
	for _, task := range r.tasks {
		if task.Provider == provider && task.Status == domain.StatusInProgress {
			tasks = append(tasks, task.Clone())
		}
	}
	return tasks, nil
}

func (r *MemoryTaskRepository) SetExternalID(ctx context.Context, id, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if task.ExternalTaskID != "" {
		return domain.ErrExternalIDAssigned
	}
	task.ExternalTaskID = externalID
	task.UpdatedAt = time.Now()
	return nil
}

// ApplyUpdate mirrors the SQL compare-and-set: the update only lands while
// the task is still in progress.
func (r *MemoryTaskRepository) ApplyUpdate(ctx context.Context, id string, update domain.TaskUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return false, domain.ErrTaskNotFound
	}
	if task.Status.IsTerminal() {
		return false, nil
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.ArtifactRef != nil {
		task.ArtifactRef = *update.ArtifactRef
	}
	if update.ErrorMessage != nil {
		task.ErrorMessage = *update.ErrorMessage
	}
	if update.Buttons != nil {
		task.Buttons = append([]domain.ActionButton(nil), update.Buttons...)
	}
	task.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryTaskRepository) Delete(ctx context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.OwnerID != ownerID {
		return domain.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

var _ domain.TaskRepository = (*MemoryTaskRepository)(nil)
