// Package midjourney talks to a midjourney-proxy deployment: submissions
// return an external task id and completion is reported asynchronously via
// the notify hook or by polling the task list.
package midjourney

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imagine/internal/infra"
)

// Submit codes returned by the proxy. Anything outside the accepted set is a
// rejection whose description is surfaced to the caller.
const (
	CodeSuccess = 1  // submitted
	CodeExisted = 21 // task already exists
	CodeQueued  = 22 // queued
)

// Task status vocabulary reported by the proxy.
const (
	StatusNotStart   = "NOT_START"
	StatusSubmitted  = "SUBMITTED"
	StatusInProgress = "IN_PROGRESS"
	StatusFailure    = "FAILURE"
	StatusSuccess    = "SUCCESS"
)

// SubmitResponse is the proxy's answer to imagine and action submissions.
type SubmitResponse struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
	Result      string `json:"result"`
}

// Accepted reports whether the submission was taken on by the proxy.
func (r *SubmitResponse) Accepted() bool {
	switch r.Code {
	case CodeSuccess, CodeExisted, CodeQueued:
		return true
	default:
		return false
	}
}

// QuotaExhausted reports whether the rejection was caused by an exhausted
// account balance.
func (r *SubmitResponse) QuotaExhausted() bool {
	return strings.Contains(r.Description, "quota_not_enough")
}

// Button describes a follow-up action offered on a task.
type Button struct {
	CustomID string `json:"customId"`
	Emoji    string `json:"emoji"`
	Label    string `json:"label"`
	Type     int    `json:"type"`
	Style    int    `json:"style"`
}

// Notify is the task progress payload, delivered both by the notify hook and
// by the task list endpoint.
type Notify struct {
	ID          string   `json:"id"`
	Action      string   `json:"action"`
	Status      string   `json:"status"`
	Prompt      string   `json:"prompt"`
	PromptEn    string   `json:"promptEn"`
	Description string   `json:"description"`
	SubmitTime  int64    `json:"submitTime"`
	StartTime   int64    `json:"startTime"`
	FinishTime  int64    `json:"finishTime"`
	Progress    string   `json:"progress"`
	ImageURL    string   `json:"imageUrl"`
	FailReason  string   `json:"failReason"`
	Buttons     []Button `json:"buttons"`
	State       string   `json:"state"`
}

// ImagineRequest submits a new drawing task.
type ImagineRequest struct {
	Base64Array []string `json:"base64Array,omitempty"`
	NotifyHook  string   `json:"notifyHook,omitempty"`
	Prompt      string   `json:"prompt"`
	State       string   `json:"state,omitempty"`
}

// ActionRequest submits a follow-up action (upscale, variation) on an
// existing task.
type ActionRequest struct {
	CustomID   string `json:"customId"`
	TaskID     string `json:"taskId"`
	NotifyHook string `json:"notifyHook,omitempty"`
}

// BuildState packs the draw parameters the proxy cannot take as fields into
// its opaque state string, echoed back on every notification.
func BuildState(width, height int, version, model string) string {
	return fmt.Sprintf("width=%d;height=%d;version=%s;model=%s", width, height, version, model)
}

// Options configures the proxy client.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the midjourney proxy.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a proxy client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8086/mj"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Imagine submits a drawing task and returns the proxy's submit response.
// A non-accepted code is not an error at this level; the engine decides how
// to surface it.
func (c *Client) Imagine(ctx context.Context, req ImagineRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.post(ctx, "/submit/imagine", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Action submits a follow-up action against an existing proxy task.
func (c *Client) Action(ctx context.Context, req ActionRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.post(ctx, "/submit/action", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTasks batch-queries progress for the given external task ids.
func (c *Client) ListTasks(ctx context.Context, ids []string) ([]Notify, error) {
	payload := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}
	var notifies []Notify
	if err := c.post(ctx, "/task/list-by-condition", payload, &notifies); err != nil {
		return nil, err
	}
	return notifies, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("midjourney: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("midjourney: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("mj-api-secret", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("midjourney: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("midjourney: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("midjourney: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("midjourney: decode response: %w", err)
	}
	c.logger.Debug().Str("path", path).Msg("midjourney: proxy call ok")
	return nil
}
