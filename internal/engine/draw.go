package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"imagine/internal/domain"
	"imagine/internal/providers/image"
	"imagine/internal/providers/midjourney"
)

// DrawCommand carries one image generation request across the engine
// boundary. Provider has already been parsed at the transport layer.
type DrawCommand struct {
	OwnerID  string
	Prompt   string
	Provider domain.Provider
	Model    string
	Width    int
	Height   int
	Options  map[string]string
	Public   bool
}

// Draw creates the task record and dispatches it by provider. Synchronous
// providers execute on the worker pool and the caller observes the outcome
// by re-reading task state later; the midjourney path submits to the proxy
// and returns once the external task id is stored. The returned id is
// available immediately in both cases.
func (s *Service) Draw(ctx context.Context, cmd DrawCommand) (string, error) {
	if strings.TrimSpace(cmd.Prompt) == "" {
		return "", errors.New("prompt is required")
	}
	if cmd.Provider.Async() {
		return s.imagine(ctx, cmd)
	}

	gen, err := s.syncGenerator(cmd.Provider)
	if err != nil {
		return "", err
	}
	task := newTask(cmd)
	if err := s.repo.Create(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	req := buildDrawRequest(cmd, task.ID)
	// Execution is decoupled from the request: the submitting call's
	// context must not cancel the provider call.
	s.pool.Submit(context.Background(), func(ctx context.Context) {
		s.executeDraw(ctx, gen, task.ID, req)
	})
	return task.ID, nil
}

// syncGenerator resolves the adapter for a synchronous provider. The switch
// is exhaustive over the closed provider set.
func (s *Service) syncGenerator(p domain.Provider) (image.Generator, error) {
	var gen image.Generator
	switch p {
	case domain.ProviderOpenAI:
		gen = s.openai
	case domain.ProviderStableDiffusion:
		gen = s.stability
	case domain.ProviderMidjourney:
		return nil, fmt.Errorf("%w: midjourney is not a synchronous provider", domain.ErrUnsupportedProvider)
	default:
		return nil, domain.ErrUnsupportedProvider
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: %s is not configured", domain.ErrUnsupportedProvider, p)
	}
	return gen, nil
}

// buildDrawRequest selects the option subset each provider understands.
func buildDrawRequest(cmd DrawCommand, taskID string) image.DrawRequest {
	req := image.DrawRequest{
		Prompt:    cmd.Prompt,
		Model:     cmd.Model,
		Width:     cmd.Width,
		Height:    cmd.Height,
		RequestID: taskID,
	}
	if cmd.Provider == domain.ProviderOpenAI {
		req.Style = cmd.Options["style"]
	}
	return req
}

// executeDraw runs one synchronous provider call and writes the terminal
// outcome in a single update. Failures are absorbed into task state and
// never propagate to the submission caller.
func (s *Service) executeDraw(ctx context.Context, gen image.Generator, taskID string, req image.DrawRequest) {
	callCtx, cancel := context.WithTimeout(ctx, s.drawTimeout)
	defer cancel()

	data, err := gen.Generate(callCtx, req)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("engine: draw failed")
		s.failTask(ctx, taskID, err.Error())
		return
	}

	ref, err := s.artifacts.Write(ctx, artifactKey(taskID), data)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("engine: store artifact failed")
		s.failTask(ctx, taskID, fmt.Sprintf("store artifact: %v", err))
		return
	}

	status := domain.StatusSuccess
	applied, err := s.repo.ApplyUpdate(ctx, taskID, domain.TaskUpdate{Status: &status, ArtifactRef: &ref})
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("engine: record success failed")
		return
	}
	if !applied {
		s.logger.Debug().Str("task_id", taskID).Msg("engine: task already terminal")
	}
}

func (s *Service) failTask(ctx context.Context, taskID, message string) {
	if strings.TrimSpace(message) == "" {
		message = "provider call failed"
	}
	status := domain.StatusFail
	if _, err := s.repo.ApplyUpdate(ctx, taskID, domain.TaskUpdate{Status: &status, ErrorMessage: &message}); err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("engine: record failure failed")
	}
}

// imagine submits to the midjourney proxy. The task row exists before the
// submission; a rejection removes it again so no in-progress row ever points
// at a nonexistent external task.
func (s *Service) imagine(ctx context.Context, cmd DrawCommand) (string, error) {
	if s.mj == nil {
		return "", fmt.Errorf("%w: midjourney is not configured", domain.ErrUnsupportedProvider)
	}
	task := newTask(cmd)
	if err := s.repo.Create(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	resp, err := s.mj.Imagine(ctx, midjourney.ImagineRequest{
		NotifyHook: s.notifyURL,
		Prompt:     cmd.Prompt,
		State:      midjourney.BuildState(cmd.Width, cmd.Height, cmd.Options["version"], cmd.Model),
	})
	if err != nil {
		s.rollbackTask(ctx, task)
		return "", fmt.Errorf("midjourney imagine: %w", err)
	}
	if !resp.Accepted() {
		s.rollbackTask(ctx, task)
		if resp.QuotaExhausted() {
			return "", fmt.Errorf("%w: account balance is insufficient", domain.ErrQuotaExhausted)
		}
		return "", fmt.Errorf("%w: %s", domain.ErrSubmitRejected, resp.Description)
	}

	if err := s.repo.SetExternalID(ctx, task.ID, resp.Result); err != nil {
		return "", fmt.Errorf("record external task id: %w", err)
	}
	return task.ID, nil
}

func (s *Service) rollbackTask(ctx context.Context, task *domain.ImageTask) {
	if err := s.repo.Delete(ctx, task.ID, task.OwnerID); err != nil {
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("engine: rollback task failed")
	}
}

func newTask(cmd DrawCommand) *domain.ImageTask {
	return &domain.ImageTask{
		ID:       uuid.NewString(),
		OwnerID:  cmd.OwnerID,
		Prompt:   cmd.Prompt,
		Provider: cmd.Provider,
		Model:    cmd.Model,
		Width:    cmd.Width,
		Height:   cmd.Height,
		Options:  cmd.Options,
		Status:   domain.StatusInProgress,
		Public:   cmd.Public,
	}
}

func artifactKey(taskID string) string {
	return fmt.Sprintf("images/%s.png", taskID)
}
