package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"imagine/internal/infra"
)

// StabilityOptions configures the Stability text-to-image client.
type StabilityOptions struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Stability calls the Stability text-to-image API. The engine id doubles as
// the model field of the draw request.
type Stability struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type stabilityTextPrompt struct {
	Text string `json:"text"`
}

type stabilityGenerationRequest struct {
	TextPrompts []stabilityTextPrompt `json:"text_prompts"`
	Width       int                   `json:"width,omitempty"`
	Height      int                   `json:"height,omitempty"`
	Samples     int                   `json:"samples"`
}

type stabilityGenerationResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

// NewStability constructs a Stability client with sane defaults.
func NewStability(opts StabilityOptions) *Stability {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stability.ai"
	}
	return &Stability{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     loggerOrDiscard(opts.Logger),
	}
}

// Generate performs one text-to-image call and decodes the first artifact.
func (c *Stability) Generate(ctx context.Context, req DrawRequest) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("stability: prompt is required")
	}
	engine := strings.TrimSpace(req.Model)
	if engine == "" {
		engine = "stable-diffusion-v1-6"
	}
	payload := stabilityGenerationRequest{
		TextPrompts: []stabilityTextPrompt{{Text: prompt}},
		Width:       req.Width,
		Height:      req.Height,
		Samples:     1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("stability: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/generation/%s/text-to-image", c.baseURL, engine)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stability: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stability: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stability: read response: %w", err)
	}
	var decoded stabilityGenerationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("stability: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode >= 300 {
		if decoded.Message != "" {
			return nil, fmt.Errorf("stability: %s (%s)", decoded.Message, decoded.Name)
		}
		return nil, fmt.Errorf("stability: status %d", resp.StatusCode)
	}
	if len(decoded.Artifacts) == 0 || decoded.Artifacts[0].Base64 == "" {
		return nil, errors.New("stability: empty artifact")
	}
	data, err := base64.StdEncoding.DecodeString(decoded.Artifacts[0].Base64)
	if err != nil {
		return nil, fmt.Errorf("stability: decode artifact: %w", err)
	}
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("engine", engine).
		Int("bytes", len(data)).
		Msg("stability: image generated")
	return data, nil
}

var _ Generator = (*Stability)(nil)
