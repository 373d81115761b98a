package domain

import "context"

// TaskUpdate is the single-write merge payload applied by the executor and
// the reconciler. Nil fields leave the stored value untouched.
type TaskUpdate struct {
	Status       *TaskStatus
	ArtifactRef  *string
	ErrorMessage *string
	Buttons      []ActionButton
}

// TaskRepository defines persistence for image tasks. It is the single
// source of truth and the only point where mutations are serialized.
type TaskRepository interface {
	Create(ctx context.Context, task *ImageTask) error

	// GetByID returns ErrTaskNotFound when no task matches.
	GetByID(ctx context.Context, id string) (*ImageTask, error)

	// GetByExternalID looks a task up by its provider-assigned id, the
	// reconciliation key for async providers.
	GetByExternalID(ctx context.Context, provider Provider, externalID string) (*ImageTask, error)

	// ListInProgress returns all non-terminal tasks for a provider, used
	// for sweep batching.
	ListInProgress(ctx context.Context, provider Provider) ([]*ImageTask, error)

	// SetExternalID records the provider-assigned id after a successful
	// submission. The id is set once; a second assignment fails with
	// ErrExternalIDAssigned.
	SetExternalID(ctx context.Context, id, externalID string) error

	// ApplyUpdate merges an update into the task in a single write. The
	// update only applies while the task is still in progress: once a
	// terminal write has landed, any later update is a no-op and applied
	// reports false. This compare-and-set is what makes racing sweep and
	// webhook merges safe.
	ApplyUpdate(ctx context.Context, id string, update TaskUpdate) (applied bool, err error)

	// Delete removes a task scoped to its owner.
	Delete(ctx context.Context, id, ownerID string) error
}

// ArtifactStore persists raw image bytes and returns a stable reference.
type ArtifactStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}
