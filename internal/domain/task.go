package domain

import (
	"strings"
	"time"
)

// Provider enumerates the supported image generation backends. The set is
// closed: adding a provider means adding a constant here and a branch in the
// engine dispatch, both checked at compile time.
type Provider string

const (
	ProviderOpenAI          Provider = "openai"
	ProviderStableDiffusion Provider = "stable-diffusion"
	ProviderMidjourney      Provider = "midjourney"
)

// ParseProvider resolves a raw provider name at the API boundary. Unknown
// names are rejected before any task record is created or network call made.
func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderStableDiffusion:
		return ProviderStableDiffusion, nil
	case ProviderMidjourney:
		return ProviderMidjourney, nil
	default:
		return "", ErrUnsupportedProvider
	}
}

// Async reports whether the provider completes out of band: the submission
// only yields an external task id and the outcome arrives later through
// reconciliation (sweep or webhook).
func (p Provider) Async() bool {
	return p == ProviderMidjourney
}

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	StatusInProgress TaskStatus = "in_progress"
	StatusSuccess    TaskStatus = "success"
	StatusFail       TaskStatus = "fail"
)

// IsTerminal reports whether the status is final. Terminal statuses are
// never overwritten.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFail
}

// ActionButton is a provider-offered follow-up action on a task, e.g. an
// upscale or variation variant. Buttons may appear before the task reaches
// a terminal state.
type ActionButton struct {
	CustomID string `json:"custom_id"`
	Emoji    string `json:"emoji,omitempty"`
	Label    string `json:"label"`
}

// ImageTask tracks one image generation request from submission to terminal
// outcome. ExternalTaskID is only populated for async providers and is the
// reconciliation key; it is set once and never changes.
type ImageTask struct {
	ID             string
	OwnerID        string
	Prompt         string
	Provider       Provider
	Model          string
	Width          int
	Height         int
	Options        map[string]string
	ExternalTaskID string
	Status         TaskStatus
	ArtifactRef    string
	ErrorMessage   string
	Buttons        []ActionButton
	Public         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasButton reports whether the task currently offers the given action.
func (t *ImageTask) HasButton(customID string) bool {
	for _, b := range t.Buttons {
		if b.CustomID == customID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand out task snapshots without
// sharing the Options map or Buttons slice.
func (t *ImageTask) Clone() *ImageTask {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Options != nil {
		cp.Options = make(map[string]string, len(t.Options))
		for k, v := range t.Options {
			cp.Options[k] = v
		}
	}
	if t.Buttons != nil {
		cp.Buttons = append([]ActionButton(nil), t.Buttons...)
	}
	return &cp
}
