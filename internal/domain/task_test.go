package domain

import (
	"errors"
	"testing"
)

func TestParseProvider(t *testing.T) {
	cases := map[string]Provider{
		"openai":           ProviderOpenAI,
		" Midjourney ":     ProviderMidjourney,
		"STABLE-DIFFUSION": ProviderStableDiffusion,
	}
	for raw, want := range cases {
		got, err := ParseProvider(raw)
		if err != nil {
			t.Fatalf("ParseProvider(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseProvider(%q) = %q, want %q", raw, got, want)
		}
	}

	if _, err := ParseProvider("dall-e-9000"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusInProgress.IsTerminal() {
		t.Fatalf("in_progress must not be terminal")
	}
	if !StatusSuccess.IsTerminal() || !StatusFail.IsTerminal() {
		t.Fatalf("success and fail must be terminal")
	}
}

func TestCloneDoesNotShareState(t *testing.T) {
	task := &ImageTask{
		ID:      "t1",
		Options: map[string]string{"style": "vivid"},
		Buttons: []ActionButton{{CustomID: "MJ::U1", Label: "U1"}},
	}
	cp := task.Clone()
	cp.Options["style"] = "natural"
	cp.Buttons[0].CustomID = "MJ::U2"

	if task.Options["style"] != "vivid" {
		t.Fatalf("clone shares options map")
	}
	if task.Buttons[0].CustomID != "MJ::U1" {
		t.Fatalf("clone shares buttons slice")
	}
}
