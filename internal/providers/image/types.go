package image

import "context"

// DrawRequest is the normalized request passed to any synchronous provider.
// Each provider selects the subset of fields its API understands.
type DrawRequest struct {
	Prompt    string
	Model     string
	Width     int
	Height    int
	Style     string
	RequestID string
}

// Generator is the contract implemented by synchronous providers: the call
// blocks until the finished image bytes are returned.
type Generator interface {
	Generate(ctx context.Context, req DrawRequest) ([]byte, error)
}
