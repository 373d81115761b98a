package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imagine/internal/adapter/repo"
	"imagine/internal/cache"
	"imagine/internal/domain"
	"imagine/internal/engine"
	"imagine/internal/http/handlers"
	"imagine/internal/http/httpapi"
	"imagine/internal/providers/image"
	"imagine/internal/providers/midjourney"
)

type stubGenerator struct {
	data []byte
	err  error
}

func (g *stubGenerator) Generate(ctx context.Context, req image.DrawRequest) ([]byte, error) {
	return g.data, g.err
}

type stubArtifacts struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *stubArtifacts) Write(ctx context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[key] = data
	return key, nil
}

type stubProxy struct {
	imagineResp *midjourney.SubmitResponse
	actionResp  *midjourney.SubmitResponse
}

func (p *stubProxy) Imagine(ctx context.Context, req midjourney.ImagineRequest) (*midjourney.SubmitResponse, error) {
	return p.imagineResp, nil
}

func (p *stubProxy) Action(ctx context.Context, req midjourney.ActionRequest) (*midjourney.SubmitResponse, error) {
	return p.actionResp, nil
}

func (p *stubProxy) ListTasks(ctx context.Context, ids []string) ([]midjourney.Notify, error) {
	return nil, nil
}

type testServer struct {
	handler http.Handler
	repo    *repo.MemoryTaskRepository
	engine  *engine.Service
	redis   *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	taskRepo := repo.NewMemoryTaskRepository()
	mr := miniredis.RunT(t)
	statusCache := cache.NewStatusCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	svc := engine.New(engine.Options{
		Repo:      taskRepo,
		Artifacts: &stubArtifacts{},
		Midjourney: &stubProxy{
			imagineResp: &midjourney.SubmitResponse{Code: midjourney.CodeSuccess, Result: "ext-1"},
			actionResp:  &midjourney.SubmitResponse{Code: midjourney.CodeSuccess, Result: "ext-2"},
		},
		OpenAI:    &stubGenerator{data: []byte("png-bytes")},
		NotifyURL: "http://callback.test/v1/midjourney/notify",
		Workers:   2,
	})

	logger := zerolog.New(io.Discard)
	app := handlers.NewApp(svc, taskRepo, statusCache, logger)
	return &testServer{
		handler: httpapi.NewRouter(app, logger),
		repo:    taskRepo,
		engine:  svc,
		redis:   mr,
	}
}

func (s *testServer) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error.Code
}

func TestDrawImageAcceptedAndCompletes(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/v1/images", "user-1", map[string]any{
		"prompt":   "a lighthouse at dusk",
		"provider": "openai",
		"width":    512,
		"height":   512,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var created struct {
		ImageID string `json:"image_id"`
		Status  string `json:"status"`
	}
	decodeBody(t, rec, &created)
	if created.ImageID == "" || created.Status != "in_progress" {
		t.Fatalf("unexpected creation response: %+v", created)
	}

	srv.engine.Wait()

	get := srv.do(t, http.MethodGet, "/v1/images/"+created.ImageID, "user-1", nil)
	if get.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", get.Code, get.Body.String())
	}
	var task struct {
		Status      string `json:"status"`
		ArtifactRef string `json:"artifact_ref"`
	}
	decodeBody(t, get, &task)
	if task.Status != "success" || task.ArtifactRef == "" {
		t.Fatalf("task not completed: %+v", task)
	}
}

func TestDrawImageRejectsUnknownProvider(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/v1/images", "user-1", map[string]any{
		"prompt":   "anything",
		"provider": "dall-e-9000",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rec); code != "unsupported_provider" {
		t.Fatalf("error code = %q", code)
	}
}

func TestDrawImageRequiresOwner(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/v1/images", "", map[string]any{
		"prompt":   "anything",
		"provider": "openai",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGetImageNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/v1/images/nope", "user-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetImageCachesTerminalSnapshot(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	task := &domain.ImageTask{
		ID:          "t-done",
		OwnerID:     "user-1",
		Prompt:      "done",
		Provider:    domain.ProviderOpenAI,
		Status:      domain.StatusSuccess,
		ArtifactRef: "images/t-done.png",
	}
	if err := srv.repo.Create(ctx, task); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	rec := srv.do(t, http.MethodGet, "/v1/images/t-done", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !srv.redis.Exists("image:task:t-done") {
		t.Fatal("terminal snapshot was not cached")
	}

	// Repository row gone, cache still serves the immutable snapshot.
	if err := srv.repo.Delete(ctx, "t-done", "user-1"); err != nil {
		t.Fatalf("delete seed: %v", err)
	}
	again := srv.do(t, http.MethodGet, "/v1/images/t-done", "user-1", nil)
	if again.Code != http.StatusOK {
		t.Fatalf("cached read status = %d", again.Code)
	}
}

func TestDeleteImageRemovesTaskAndCache(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	task := &domain.ImageTask{
		ID:       "t-del",
		OwnerID:  "user-1",
		Prompt:   "delete me",
		Provider: domain.ProviderOpenAI,
		Status:   domain.StatusSuccess,
	}
	if err := srv.repo.Create(ctx, task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	// Warm the cache through the read path first.
	srv.do(t, http.MethodGet, "/v1/images/t-del", "user-1", nil)

	rec := srv.do(t, http.MethodDelete, "/v1/images/t-del", "user-1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if srv.redis.Exists("image:task:t-del") {
		t.Fatal("cache entry survived deletion")
	}
	if _, err := srv.repo.GetByID(ctx, "t-del"); err == nil {
		t.Fatal("task row survived deletion")
	}
}

func TestDeleteImageOtherOwner(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	if err := srv.repo.Create(ctx, &domain.ImageTask{
		ID:       "t-owned",
		OwnerID:  "user-1",
		Prompt:   "mine",
		Provider: domain.ProviderOpenAI,
		Status:   domain.StatusInProgress,
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	rec := srv.do(t, http.MethodDelete, "/v1/images/t-owned", "user-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestImageActionCreatesDerivativeTask(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	if err := srv.repo.Create(ctx, &domain.ImageTask{
		ID:             "t-parent",
		OwnerID:        "user-1",
		Prompt:         "a castle",
		Provider:       domain.ProviderMidjourney,
		ExternalTaskID: "ext-parent",
		Status:         domain.StatusSuccess,
		Buttons:        []domain.ActionButton{{CustomID: "MJ::U1", Label: "U1"}},
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	rec := srv.do(t, http.MethodPost, "/v1/images/t-parent/actions", "user-1", map[string]string{
		"custom_id": "MJ::U1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ImageID string `json:"image_id"`
	}
	decodeBody(t, rec, &created)
	if created.ImageID == "" || created.ImageID == "t-parent" {
		t.Fatalf("bad derivative id %q", created.ImageID)
	}

	child, err := srv.repo.GetByID(ctx, created.ImageID)
	if err != nil {
		t.Fatalf("load derivative: %v", err)
	}
	if child.ExternalTaskID != "ext-2" || child.Status != domain.StatusInProgress {
		t.Fatalf("unexpected derivative state: %+v", child)
	}
}

func TestImageActionUnavailable(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	if err := srv.repo.Create(ctx, &domain.ImageTask{
		ID:             "t-nobuttons",
		OwnerID:        "user-1",
		Prompt:         "plain",
		Provider:       domain.ProviderMidjourney,
		ExternalTaskID: "ext-x",
		Status:         domain.StatusSuccess,
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	rec := srv.do(t, http.MethodPost, "/v1/images/t-nobuttons/actions", "user-1", map[string]string{
		"custom_id": "MJ::U1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rec); code != "action_not_available" {
		t.Fatalf("error code = %q", code)
	}
}

func TestMidjourneyNotifyUnknownTaskReturnsOK(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/v1/midjourney/notify", "", midjourney.Notify{
		ID:     "never-seen",
		Status: midjourney.StatusSuccess,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestMidjourneyNotifyMarksFailure(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	if err := srv.repo.Create(ctx, &domain.ImageTask{
		ID:             "t-async",
		OwnerID:        "user-1",
		Prompt:         "a storm",
		Provider:       domain.ProviderMidjourney,
		ExternalTaskID: "ext-async",
		Status:         domain.StatusInProgress,
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	rec := srv.do(t, http.MethodPost, "/v1/midjourney/notify", "", midjourney.Notify{
		ID:         "ext-async",
		Status:     midjourney.StatusFailure,
		FailReason: "banned prompt",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	task, err := srv.repo.GetByID(ctx, "t-async")
	if err != nil {
		t.Fatalf("load task: %v", err)
	}
	if task.Status != domain.StatusFail || task.ErrorMessage != "banned prompt" {
		t.Fatalf("unexpected task state: %+v", task)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/v1/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
