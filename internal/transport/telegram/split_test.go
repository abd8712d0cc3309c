package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("x", 8) + "\n" + strings.Repeat("y", 8)
	got := splitText(s, 10)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(got), got)
	}
	if got[0] != strings.Repeat("x", 8) {
		t.Fatalf("first chunk = %q", got[0])
	}
}

func TestClampText(t *testing.T) {
	t.Parallel()
	if got := clampText("hello", 10); got != "hello" {
		t.Fatalf("short text rewritten: %q", got)
	}
	got := clampText(strings.Repeat("я", 20), 10)
	if rs := []rune(got); len(rs) != 10 {
		t.Fatalf("clamped to %d runes, want 10", len(rs))
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("clamped text has no ellipsis: %q", got)
	}
}

func TestSplitTextCoversAllRunes(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("абв", 100) // multibyte runes must not be cut mid-character
	chunks := splitText(s, 25)
	var n int
	for _, c := range chunks {
		if len([]rune(c)) > 25 {
			t.Fatalf("chunk too long: %d runes", len([]rune(c)))
		}
		n += len([]rune(c))
	}
	if n != 300 {
		t.Fatalf("reassembled %d runes, want 300", n)
	}
}
