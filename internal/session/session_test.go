package session

import (
	"strings"
	"testing"
)

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "short title unchanged", title: "Weekly check-in", want: "Weekly check-in"},
		{name: "exactly at limit", title: strings.Repeat("a", TitleMaxLength), want: strings.Repeat("a", TitleMaxLength)},
		{name: "over limit truncated", title: strings.Repeat("b", TitleMaxLength+10), want: strings.Repeat("b", TitleMaxLength-3) + "..."},
		{name: "empty", title: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateTitle(tt.title)
			if got != tt.want {
				t.Errorf("TruncateTitle(%q) = %q, want %q", tt.title, got, tt.want)
			}
			if len([]rune(got)) > TitleMaxLength {
				t.Errorf("result exceeds max length: %d", len([]rune(got)))
			}
		})
	}
}

func TestTruncateTitleMultibyte(t *testing.T) {
	title := strings.Repeat("健", TitleMaxLength+5)
	got := TruncateTitle(title)
	if len([]rune(got)) != TitleMaxLength {
		t.Errorf("rune length = %d, want %d", len([]rune(got)), TitleMaxLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got[len(got)-9:])
	}
}
