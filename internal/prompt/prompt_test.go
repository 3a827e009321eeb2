package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestComposeMarkers(t *testing.T) {
	f := Fields{
		ImageData: "<<IMG-7f3a>>",
		Documents: "<<DOC-91bc>>",
		Context:   "<<CTX-22d0>>",
		Question:  "<<Q-5e11>>",
	}
	out := Compose(f)

	slots := []struct {
		marker string
		after  string
	}{
		{marker: f.ImageData, after: "Image Data (if available):\n"},
		{marker: f.Documents, after: "Data Summary:\n"},
		{marker: f.Context, after: "Conversation History: "},
		{marker: f.Question, after: "User's Question: "},
	}
	for _, s := range slots {
		if n := strings.Count(out, s.marker); n != 1 {
			t.Errorf("Marker %s appears %d times", s.marker, n)
		}
		if !strings.Contains(out, s.after+s.marker) {
			t.Errorf("Marker %s not in its slot", s.marker)
		}
	}
	if strings.Contains(out, "{") {
		t.Error("Unreplaced placeholder left in prompt")
	}
	if !strings.HasSuffix(out, "Your Answer:\n") {
		t.Error("Prompt should end with the answer cue")
	}
}

func TestComposeVerbatim(t *testing.T) {
	f := Fields{
		Question:  "what about {context}? <b>&amp;</b>",
		Context:   "line1\nline2",
		Documents: "",
		ImageData: "",
	}
	out := Compose(f)
	if !strings.Contains(out, "User's Question: what about {context}? <b>&amp;</b>") {
		t.Error("Question should be inserted without escaping or re-substitution")
	}
	if !strings.Contains(out, "Conversation History: line1\nline2\n") {
		t.Error("Context should be inserted verbatim")
	}
}

func TestComposerUnlimited(t *testing.T) {
	f := Fields{Context: strings.Repeat("x", 10000)}
	if (Composer{}).Compose(f) != Compose(f) {
		t.Error("Zero limit should match Compose")
	}
}

func TestComposerKeepsTail(t *testing.T) {
	f := Fields{Context: "old exchange\nUser: hi\nAI: hello"}
	out := Composer{MaxContextChars: 9}.Compose(f)
	if !strings.Contains(out, "Conversation History: AI: hello\n") {
		t.Errorf("Expected tail of context, got %q", out)
	}
	if strings.Contains(out, "old exchange") {
		t.Error("Old context should be dropped")
	}
}

func TestTailBytes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "unlimited", in: "abc", n: 0, want: "abc"},
		{name: "short", in: "abc", n: 5, want: "abc"},
		{name: "ascii", in: "abcdef", n: 3, want: "def"},
		{name: "rune boundary", in: "aé", n: 1, want: ""},
		{name: "whole rune", in: "aé", n: 2, want: "é"},
		{name: "multibyte", in: "日本語", n: 4, want: "語"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TailBytes(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("TailBytes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Result is not valid UTF-8: %q", got)
			}
		})
	}
}
