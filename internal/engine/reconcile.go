package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"imagine/internal/domain"
	"imagine/internal/providers/midjourney"
)

// Sweep batch-queries the proxy for all in-progress midjourney tasks and
// merges every returned notification. Tasks the proxy reports nothing for
// are logged and left untouched; the proxy may simply have no progress yet.
// Returns the number of tasks merged in this pass.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	tasks, err := s.repo.ListInProgress(ctx, domain.ProviderMidjourney)
	if err != nil {
		return 0, fmt.Errorf("list in-progress tasks: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if task.ExternalTaskID != "" {
			ids = append(ids, task.ExternalTaskID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	notifies, err := s.mj.ListTasks(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("query task progress: %w", err)
	}
	byID := make(map[string]midjourney.Notify, len(notifies))
	for _, n := range notifies {
		byID[n.ID] = n
	}

	count := 0
	for _, task := range tasks {
		n, ok := byID[task.ExternalTaskID]
		if !ok {
			s.logger.Debug().
				Str("task_id", task.ID).
				Str("external_task_id", task.ExternalTaskID).
				Msg("engine: no progress reported")
			continue
		}
		count++
		s.applyNotify(ctx, task, n)
	}
	return count, nil
}

// HandleNotify merges one pushed webhook notification. A notification whose
// external id matches no task is dropped silently: providers deliver
// at-least-once and stale events are expected.
func (s *Service) HandleNotify(ctx context.Context, n midjourney.Notify) error {
	task, err := s.repo.GetByExternalID(ctx, domain.ProviderMidjourney, n.ID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			s.logger.Warn().Str("external_task_id", n.ID).Msg("engine: notification for unknown task dropped")
			return nil
		}
		return fmt.Errorf("lookup task by external id: %w", err)
	}
	s.applyNotify(ctx, task, n)
	return nil
}

// applyNotify is the single merge routine both reconciliation paths funnel
// into. It resolves the proxy's status vocabulary, persists the artifact on
// success (best effort, falling back to the external URL), refreshes the
// offered buttons, and writes everything in one update. Idempotence comes
// from the repository: the write lands only while the task is in progress.
func (s *Service) applyNotify(ctx context.Context, task *domain.ImageTask, n midjourney.Notify) {
	var update domain.TaskUpdate
	switch n.Status {
	case midjourney.StatusSuccess:
		status := domain.StatusSuccess
		update.Status = &status
		if n.ImageURL != "" {
			ref := s.fetchArtifact(ctx, task.ID, n.ImageURL)
			update.ArtifactRef = &ref
		}
	case midjourney.StatusFailure:
		status := domain.StatusFail
		update.Status = &status
		reason := n.FailReason
		if reason == "" {
			reason = "provider reported failure"
		}
		update.ErrorMessage = &reason
	}
	if len(n.Buttons) > 0 {
		update.Buttons = toDomainButtons(n.Buttons)
	}
	if update.Status == nil && update.Buttons == nil {
		return
	}

	applied, err := s.repo.ApplyUpdate(ctx, task.ID, update)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("engine: merge notification failed")
		return
	}
	if !applied {
		s.logger.Debug().Str("task_id", task.ID).Msg("engine: task already terminal, notification ignored")
	}
}

// fetchArtifact downloads the provider-hosted image and persists it locally.
// Any fetch or store hiccup falls back to the external URL verbatim so a
// storage failure can never strand the task in progress.
func (s *Service) fetchArtifact(ctx context.Context, taskID, imageURL string) string {
	data, err := s.download(ctx, imageURL)
	if err == nil {
		ref, werr := s.artifacts.Write(ctx, artifactKey(taskID), data)
		if werr == nil {
			return ref
		}
		err = werr
	}
	s.logger.Warn().Err(err).
		Str("task_id", taskID).
		Str("image_url", imageURL).
		Msg("engine: artifact persist failed, keeping provider url")
	return imageURL
}

func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func toDomainButtons(buttons []midjourney.Button) []domain.ActionButton {
	out := make([]domain.ActionButton, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, domain.ActionButton{
			CustomID: b.CustomID,
			Emoji:    b.Emoji,
			Label:    b.Label,
		})
	}
	return out
}
