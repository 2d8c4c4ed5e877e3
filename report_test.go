package main

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		truncate bool
	}{
		{"short", "Hello.", false},
		{"exact", strings.Repeat("a", previewWidth), false},
		{"long", strings.Repeat("word ", 20), true},
		{"wide runes", strings.Repeat("語", 40), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preview(tt.text)
			if w := runewidth.StringWidth(got); w != previewWidth {
				t.Errorf("width = %d, want %d (%q)", w, previewWidth, got)
			}
			if truncated := strings.Contains(got, "…"); truncated != tt.truncate {
				t.Errorf("truncated = %v, want %v (%q)", truncated, tt.truncate, got)
			}
		})
	}
}
