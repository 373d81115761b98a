package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"imagine/internal/domain"
	"imagine/internal/engine"
	"imagine/internal/providers/midjourney"
)

type drawRequest struct {
	Prompt   string            `json:"prompt"`
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Options  map[string]string `json:"options"`
	Public   bool              `json:"public"`
}

type taskCreatedResponse struct {
	ImageID string `json:"image_id"`
	Status  string `json:"status"`
}

type actionRequest struct {
	CustomID string `json:"custom_id"`
}

type taskResponse struct {
	ID             string                `json:"id"`
	OwnerID        string                `json:"owner_id"`
	Prompt         string                `json:"prompt"`
	Provider       string                `json:"provider"`
	Model          string                `json:"model,omitempty"`
	Width          int                   `json:"width,omitempty"`
	Height         int                   `json:"height,omitempty"`
	Options        map[string]string     `json:"options,omitempty"`
	ExternalTaskID string                `json:"external_task_id,omitempty"`
	Status         string                `json:"status"`
	ArtifactRef    string                `json:"artifact_ref,omitempty"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	Buttons        []domain.ActionButton `json:"buttons,omitempty"`
	Public         bool                  `json:"public"`
}

func toTaskResponse(task *domain.ImageTask) taskResponse {
	return taskResponse{
		ID:             task.ID,
		OwnerID:        task.OwnerID,
		Prompt:         task.Prompt,
		Provider:       string(task.Provider),
		Model:          task.Model,
		Width:          task.Width,
		Height:         task.Height,
		Options:        task.Options,
		ExternalTaskID: task.ExternalTaskID,
		Status:         string(task.Status),
		ArtifactRef:    task.ArtifactRef,
		ErrorMessage:   task.ErrorMessage,
		Buttons:        task.Buttons,
		Public:         task.Public,
	}
}

// DrawImage accepts a generation request and returns the task id
// immediately; completion is observed by polling GetImage.
func (a *App) DrawImage(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	var req drawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		a.error(w, http.StatusBadRequest, "unsupported_provider", "unsupported provider")
		return
	}

	id, err := a.Engine.Draw(r.Context(), engine.DrawCommand{
		OwnerID:  ownerID,
		Prompt:   req.Prompt,
		Provider: provider,
		Model:    req.Model,
		Width:    req.Width,
		Height:   req.Height,
		Options:  req.Options,
		Public:   req.Public,
	})
	if err != nil {
		a.submitError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, taskCreatedResponse{ImageID: id, Status: string(domain.StatusInProgress)})
}

// GetImage returns the latest task snapshot. Terminal snapshots are served
// from the status cache when available; they are immutable so the cache can
// never go stale.
func (a *App) GetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	if a.Cache != nil {
		if task, err := a.Cache.Get(r.Context(), id); err == nil && task != nil {
			a.json(w, http.StatusOK, toTaskResponse(task))
			return
		} else if err != nil {
			a.Logger.Warn().Err(err).Str("task_id", id).Msg("handlers: status cache read failed")
		}
	}

	task, err := a.Repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load task")
		return
	}
	if a.Cache != nil && task.Status.IsTerminal() {
		if err := a.Cache.Set(r.Context(), task); err != nil {
			a.Logger.Warn().Err(err).Str("task_id", id).Msg("handlers: status cache write failed")
		}
	}
	a.json(w, http.StatusOK, toTaskResponse(task))
}

// DeleteImage removes a task owned by the caller.
func (a *App) DeleteImage(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.Repo.Delete(r.Context(), id, ownerID); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete task")
		return
	}
	if a.Cache != nil {
		if err := a.Cache.Delete(r.Context(), id); err != nil {
			a.Logger.Warn().Err(err).Str("task_id", id).Msg("handlers: status cache delete failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImageAction invokes one of the task's offered follow-up actions and
// returns the derivative task id.
func (a *App) ImageAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.CustomID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "custom_id is required")
		return
	}

	childID, err := a.Engine.Action(r.Context(), id, req.CustomID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
			a.error(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, domain.ErrActionNotAvailable):
			a.error(w, http.StatusBadRequest, "action_not_available", "action is not offered by this task")
		default:
			a.submitError(w, err)
		}
		return
	}
	a.json(w, http.StatusCreated, taskCreatedResponse{ImageID: childID, Status: string(domain.StatusInProgress)})
}

// MidjourneyNotify is the webhook sink for pushed proxy notifications.
// Unknown external ids are dropped inside the engine; the proxy always gets
// a 200 so it stops retrying.
func (a *App) MidjourneyNotify(w http.ResponseWriter, r *http.Request) {
	var notify midjourney.Notify
	if err := json.NewDecoder(r.Body).Decode(&notify); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Engine.HandleNotify(r.Context(), notify); err != nil {
		a.Logger.Error().Err(err).Str("external_task_id", notify.ID).Msg("handlers: notify merge failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to process notification")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (a *App) submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedProvider):
		a.error(w, http.StatusBadRequest, "unsupported_provider", err.Error())
	case errors.Is(err, domain.ErrQuotaExhausted):
		a.error(w, http.StatusForbidden, "quota_exhausted", err.Error())
	case errors.Is(err, domain.ErrSubmitRejected):
		a.error(w, http.StatusBadGateway, "provider_rejected", err.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", "submission failed")
	}
}
