// Package engine implements the task submission, execution and
// reconciliation core: per-provider dispatch, decoupled synchronous
// execution, idempotent merging of sweep and webhook notifications, and the
// follow-up action flow.
package engine

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"imagine/internal/domain"
	"imagine/internal/infra"
	"imagine/internal/providers/image"
	"imagine/internal/providers/midjourney"
)

// MidjourneyAPI is the asynchronous-submit provider flavor: submissions only
// yield an external task id and completion arrives later.
type MidjourneyAPI interface {
	Imagine(ctx context.Context, req midjourney.ImagineRequest) (*midjourney.SubmitResponse, error)
	Action(ctx context.Context, req midjourney.ActionRequest) (*midjourney.SubmitResponse, error)
	ListTasks(ctx context.Context, ids []string) ([]midjourney.Notify, error)
}

// Service wires the task repository, artifact store and provider adapters
// into the submission/reconciliation engine.
type Service struct {
	repo      domain.TaskRepository
	artifacts domain.ArtifactStore
	mj        MidjourneyAPI
	openai    image.Generator
	stability image.Generator

	pool        *Pool
	httpClient  *http.Client
	notifyURL   string
	drawTimeout time.Duration
	logger      infra.Logger
}

// Options configures the engine. Repo and Artifacts are required; providers
// may be nil when a deployment does not offer them, in which case draws for
// that provider fail at dispatch.
type Options struct {
	Repo      domain.TaskRepository
	Artifacts domain.ArtifactStore

	Midjourney MidjourneyAPI
	OpenAI     image.Generator
	Stability  image.Generator

	// NotifyURL is the webhook callback handed to the async provider on
	// every submission.
	NotifyURL string

	// DrawTimeout bounds one synchronous provider call. A call that
	// exceeds it is treated as a provider failure.
	DrawTimeout time.Duration

	Workers    int
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// New constructs the engine service.
func New(opts Options) *Service {
	drawTimeout := opts.DrawTimeout
	if drawTimeout <= 0 {
		drawTimeout = 120 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Service{
		repo:        opts.Repo,
		artifacts:   opts.Artifacts,
		mj:          opts.Midjourney,
		openai:      opts.OpenAI,
		stability:   opts.Stability,
		pool:        NewPool(opts.Workers),
		httpClient:  httpClient,
		notifyURL:   opts.NotifyURL,
		drawTimeout: drawTimeout,
		logger:      logger,
	}
}

// Wait blocks until all in-flight executions have finished. Used on shutdown
// and by tests.
func (s *Service) Wait() {
	s.pool.Wait()
}
