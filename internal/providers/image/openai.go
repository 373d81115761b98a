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

	"github.com/rs/zerolog"

	"imagine/internal/infra"
)

// ErrMissingAPIKey indicates that a client was configured without credentials.
var ErrMissingAPIKey = errors.New("image: api key is required")

// OpenAIOptions configures the OpenAI images client.
type OpenAIOptions struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// OpenAI calls the OpenAI image generation API and returns raw image bytes.
// Responses are requested as b64_json so no second download round-trip is
// needed.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type openaiGenerationRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type openaiGenerationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAI constructs an OpenAI client with sane defaults.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
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
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAI{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     loggerOrDiscard(opts.Logger),
	}
}

// Generate performs one image generation call and decodes the b64 payload.
func (c *OpenAI) Generate(ctx context.Context, req DrawRequest) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("openai: prompt is required")
	}
	payload := openaiGenerationRequest{
		Model:          req.Model,
		Prompt:         prompt,
		N:              1,
		Style:          req.Style,
		ResponseFormat: "b64_json",
	}
	if req.Width > 0 && req.Height > 0 {
		payload.Size = fmt.Sprintf("%dx%d", req.Width, req.Height)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	var decoded openaiGenerationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("openai: %s (%s)", decoded.Error.Message, decoded.Error.Type)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai: status %d", resp.StatusCode)
	}
	if len(decoded.Data) == 0 || decoded.Data[0].B64JSON == "" {
		return nil, errors.New("openai: empty image payload")
	}
	data, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai: decode image payload: %w", err)
	}
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Int("bytes", len(data)).
		Msg("openai: image generated")
	return data, nil
}

func loggerOrDiscard(logger *infra.Logger) *infra.Logger {
	if logger != nil {
		return logger
	}
	discard := zerolog.New(io.Discard)
	l := infra.Logger(discard)
	return &l
}

var _ Generator = (*OpenAI)(nil)
