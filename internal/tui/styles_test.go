package tui

import (
	"strings"
	"testing"

	"github.com/randomizedcoder/go-spawn/internal/supervisor"
	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

func TestGetFeedStatus(t *testing.T) {
	tests := []struct {
		name     string
		dropRate float64
		want     FeedStatus
	}{
		{"no drops", 0, FeedStatusOK},
		{"tiny drops", 0.001, FeedStatusDegraded},
		{"10% drops", 0.10, FeedStatusDegraded},
		{"11% drops", 0.11, FeedStatusSeverelyDegraded},
		{"50% drops", 0.50, FeedStatusSeverelyDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetFeedStatus(tt.dropRate); got != tt.want {
				t.Errorf("GetFeedStatus(%v) = %v, want %v", tt.dropRate, got, tt.want)
			}
		})
	}
}

func TestGetFeedLabel(t *testing.T) {
	tests := []struct {
		name       string
		dropRate   float64
		wantSubstr string
	}{
		{"ok", 0, "Feed"},
		{"degraded", 0.05, "degraded"},
		{"severely degraded", 0.15, "severely degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetFeedLabel(tt.dropRate); !strings.Contains(got, tt.wantSubstr) {
				t.Errorf("GetFeedLabel(%v) = %q, want to contain %q", tt.dropRate, got, tt.wantSubstr)
			}
		})
	}
}

func TestGetStateStyle(t *testing.T) {
	// Every displayed state renders its text.
	for _, s := range append(displayedStates, supervisor.StateCreated) {
		if got := GetStateStyle(s).Render(s.String()); !strings.Contains(got, s.String()) {
			t.Errorf("GetStateStyle(%v) lost the text: %q", s, got)
		}
	}
}

func TestGetStreamStyle(t *testing.T) {
	for _, stream := range []spawn.Stream{spawn.StreamOutput, spawn.StreamError} {
		if got := GetStreamStyle(stream).Render("x"); !strings.Contains(got, "x") {
			t.Errorf("GetStreamStyle(%v) lost the text", stream)
		}
	}
}

func TestRenderKeyValue(t *testing.T) {
	got := RenderKeyValue("Starts", "42")
	if !strings.Contains(got, "Starts:") || !strings.Contains(got, "42") {
		t.Errorf("RenderKeyValue() = %q", got)
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name        string
		progress    float64
		width       int
		wantPercent string
	}{
		{"empty", 0, 20, "0%"},
		{"half", 0.5, 20, "50%"},
		{"full", 1, 20, "100%"},
		{"over", 1.5, 20, "150%"},
		{"narrow", 0.5, 2, "50%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderProgressBar(tt.progress, tt.width)
			if !strings.Contains(got, tt.wantPercent) {
				t.Errorf("RenderProgressBar(%v, %d) = %q, want %q", tt.progress, tt.width, got, tt.wantPercent)
			}
			filled := strings.Count(got, "█")
			empty := strings.Count(got, "░")
			if filled+empty != max(tt.width, 10) {
				t.Errorf("bar has %d cells, want %d", filled+empty, max(tt.width, 10))
			}
		})
	}
}
