package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"imagine/internal/domain"
	"imagine/internal/providers/midjourney"
)

// Action invokes one of the task's currently offered follow-up actions and
// materializes a brand-new derivative task. Validation runs against the
// latest stored state, never a cached copy; the parent task is not mutated.
func (s *Service) Action(ctx context.Context, taskID, customID string) (string, error) {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return "", err
	}
	if !task.HasButton(customID) {
		return "", domain.ErrActionNotAvailable
	}

	resp, err := s.mj.Action(ctx, midjourney.ActionRequest{
		CustomID:   customID,
		TaskID:     task.ExternalTaskID,
		NotifyHook: s.notifyURL,
	})
	if err != nil {
		return "", fmt.Errorf("midjourney action: %w", err)
	}
	if !resp.Accepted() {
		if resp.QuotaExhausted() {
			return "", fmt.Errorf("%w: account balance is insufficient", domain.ErrQuotaExhausted)
		}
		return "", fmt.Errorf("%w: %s", domain.ErrSubmitRejected, resp.Description)
	}

	child := &domain.ImageTask{
		ID:             uuid.NewString(),
		OwnerID:        task.OwnerID,
		Prompt:         task.Prompt,
		Provider:       task.Provider,
		Model:          task.Model,
		Width:          task.Width,
		Height:         task.Height,
		Options:        task.Options,
		ExternalTaskID: resp.Result,
		Status:         domain.StatusInProgress,
		Public:         task.Public,
	}
	if err := s.repo.Create(ctx, child); err != nil {
		return "", fmt.Errorf("create derivative task: %w", err)
	}
	return child.ID, nil
}
