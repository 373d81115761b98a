package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imagine/internal/domain"
)

// TaskRepositoryPG implements domain.TaskRepository on PostgreSQL.
type TaskRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a task repository backed by PostgreSQL.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepositoryPG {
	return &TaskRepositoryPG{pool: pool}
}

const taskColumns = `id, owner_id, prompt, provider, model, width, height, options,
COALESCE(external_task_id, ''), status, COALESCE(artifact_ref, ''), COALESCE(error_message, ''),
buttons, public, created_at, updated_at`

// Create inserts a new task record.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.ImageTask) error {
	options, err := json.Marshal(task.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	buttons, err := json.Marshal(task.Buttons)
	if err != nil {
		return fmt.Errorf("encode buttons: %w", err)
	}
	query := `
INSERT INTO image_tasks (id, owner_id, prompt, provider, model, width, height, options, external_task_id, status, buttons, public)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12);
`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.OwnerID,
		task.Prompt,
		task.Provider,
		task.Model,
		task.Width,
		task.Height,
		options,
		task.ExternalTaskID,
		task.Status,
		buttons,
		task.Public,
	)
	return err
}

// GetByID fetches a task by its identifier.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, id string) (*domain.ImageTask, error) {
	query := `SELECT ` + taskColumns + ` FROM image_tasks WHERE id = $1;`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByExternalID fetches a task by the provider-assigned id.
func (r *TaskRepositoryPG) GetByExternalID(ctx context.Context, provider domain.Provider, externalID string) (*domain.ImageTask, error) {
	query := `SELECT ` + taskColumns + ` FROM image_tasks WHERE provider = $1 AND external_task_id = $2;`
	return r.scanOne(r.pool.QueryRow(ctx, query, provider, externalID))
}

// ListInProgress returns all non-terminal tasks for the given provider.
func (r *TaskRepositoryPG) ListInProgress(ctx context.Context, provider domain.Provider) ([]*domain.ImageTask, error) {
	query := `SELECT ` + taskColumns + ` FROM image_tasks WHERE provider = $1 AND status = $2 ORDER BY created_at;`
	rows, err := r.pool.Query(ctx, query, provider, domain.StatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.ImageTask
	for rows.Next() {
		task, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SetExternalID records the provider-assigned id. The column is written at
// most once; a second assignment fails with domain.ErrExternalIDAssigned.
func (r *TaskRepositoryPG) SetExternalID(ctx context.Context, id, externalID string) error {
	query := `
UPDATE image_tasks
SET external_task_id = $2, updated_at = NOW()
WHERE id = $1 AND external_task_id IS NULL;
`
	tag, err := r.pool.Exec(ctx, query, id, externalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrExternalIDAssigned
	}
	return nil
}

// ApplyUpdate merges the update in a single statement. The WHERE clause only
// matches tasks still in progress, so a terminal write can never be
// overwritten; the caller learns whether the write landed via applied.
func (r *TaskRepositoryPG) ApplyUpdate(ctx context.Context, id string, update domain.TaskUpdate) (bool, error) {
	var buttons []byte
	if update.Buttons != nil {
		encoded, err := json.Marshal(update.Buttons)
		if err != nil {
			return false, fmt.Errorf("encode buttons: %w", err)
		}
		buttons = encoded
	}
	var status *string
	if update.Status != nil {
		s := string(*update.Status)
		status = &s
	}
	query := `
UPDATE image_tasks
SET status        = COALESCE($2::text, status),
    artifact_ref  = COALESCE($3::text, artifact_ref),
    error_message = COALESCE($4::text, error_message),
    buttons       = COALESCE($5::jsonb, buttons),
    updated_at    = NOW()
WHERE id = $1 AND status = $6;
`
	tag, err := r.pool.Exec(ctx, query,
		id,
		status,
		update.ArtifactRef,
		update.ErrorMessage,
		buttons,
		domain.StatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a task scoped to its owner.
func (r *TaskRepositoryPG) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM image_tasks WHERE id = $1 AND owner_id = $2;`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepositoryPG) scanOne(row pgx.Row) (*domain.ImageTask, error) {
	var task domain.ImageTask
	var options, buttons []byte
	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Prompt,
		&task.Provider,
		&task.Model,
		&task.Width,
		&task.Height,
		&options,
		&task.ExternalTaskID,
		&task.Status,
		&task.ArtifactRef,
		&task.ErrorMessage,
		&buttons,
		&task.Public,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &task.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	if len(buttons) > 0 {
		if err := json.Unmarshal(buttons, &task.Buttons); err != nil {
			return nil, fmt.Errorf("decode buttons: %w", err)
		}
	}
	return &task, nil
}
