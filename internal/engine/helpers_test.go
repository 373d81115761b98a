package engine

import (
	"context"
	"errors"
	"sync"

	"imagine/internal/adapter/repo"
	"imagine/internal/domain"
	"imagine/internal/providers/image"
	"imagine/internal/providers/midjourney"
)

type fakeGenerator struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls int
	last  image.DrawRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req image.DrawRequest) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	return g.data, nil
}

type memArtifacts struct {
	mu      sync.Mutex
	files   map[string][]byte
	failAll bool
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{files: map[string][]byte{}}
}

func (a *memArtifacts) Write(ctx context.Context, key string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failAll {
		return "", errors.New("artifact store unavailable")
	}
	a.files[key] = append([]byte(nil), data...)
	return key, nil
}

type fakeProxy struct {
	mu sync.Mutex

	imagineResp *midjourney.SubmitResponse
	imagineErr  error
	lastImagine midjourney.ImagineRequest

	actionResp *midjourney.SubmitResponse
	actionErr  error
	lastAction midjourney.ActionRequest

	notifies []midjourney.Notify
	listErr  error
	listIDs  [][]string
}

func (p *fakeProxy) Imagine(ctx context.Context, req midjourney.ImagineRequest) (*midjourney.SubmitResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastImagine = req
	if p.imagineErr != nil {
		return nil, p.imagineErr
	}
	return p.imagineResp, nil
}

func (p *fakeProxy) Action(ctx context.Context, req midjourney.ActionRequest) (*midjourney.SubmitResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAction = req
	if p.actionErr != nil {
		return nil, p.actionErr
	}
	return p.actionResp, nil
}

func (p *fakeProxy) ListTasks(ctx context.Context, ids []string) ([]midjourney.Notify, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listIDs = append(p.listIDs, append([]string(nil), ids...))
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.notifies, nil
}

type testEnv struct {
	svc       *Service
	repo      *repo.MemoryTaskRepository
	artifacts *memArtifacts
	proxy     *fakeProxy
	openai    *fakeGenerator
	stability *fakeGenerator
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:      repo.NewMemoryTaskRepository(),
		artifacts: newMemArtifacts(),
		proxy:     &fakeProxy{},
		openai:    &fakeGenerator{data: []byte("png-bytes")},
		stability: &fakeGenerator{data: []byte("png-bytes")},
	}
	env.svc = New(Options{
		Repo:       env.repo,
		Artifacts:  env.artifacts,
		Midjourney: env.proxy,
		OpenAI:     env.openai,
		Stability:  env.stability,
		NotifyURL:  "http://127.0.0.1:8080/v1/midjourney/notify",
		Workers:    2,
	})
	return env
}

func accepted(result string) *midjourney.SubmitResponse {
	return &midjourney.SubmitResponse{Code: midjourney.CodeSuccess, Result: result}
}

// seedMidjourneyTask creates an in-progress midjourney task wired to the
// given external id, the state a task is in right after submission.
func (e *testEnv) seedMidjourneyTask(ctx context.Context, id, externalID string) *domain.ImageTask {
	task := &domain.ImageTask{
		ID:       id,
		OwnerID:  "owner-1",
		Prompt:   "a cat",
		Provider: domain.ProviderMidjourney,
		Model:    "midjourney",
		Width:    1024,
		Height:   1024,
		Status:   domain.StatusInProgress,
	}
	if err := e.repo.Create(ctx, task); err != nil {
		panic(err)
	}
	if externalID != "" {
		if err := e.repo.SetExternalID(ctx, id, externalID); err != nil {
			panic(err)
		}
	}
	return task
}
