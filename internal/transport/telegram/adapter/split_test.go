package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()

	got := SplitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextRespectsLimit(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("ä", 25)
	got := SplitText(s, 10, "")
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	for i, c := range got {
		if n := utf8.RuneCountInString(c); n > 10 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
	if strings.Join(got, "") != s {
		t.Fatalf("chunks do not reassemble")
	}
}

func TestSplitTextPrefersNewline(t *testing.T) {
	t.Parallel()

	s := "first line\nsecond line that runs long"
	got := SplitText(s, 20, "")
	if got[0] != "first line" {
		t.Fatalf("first chunk = %q", got[0])
	}
	if !strings.HasPrefix(got[1], "second") {
		t.Fatalf("second chunk = %q", got[1])
	}
}

func TestSplitTextAvoidsHTMLTag(t *testing.T) {
	t.Parallel()

	s := "abcdefgh<b>bold</b>"
	got := SplitText(s, 10, "HTML")
	if got[0] != "abcdefgh" {
		t.Fatalf("first chunk = %q", got[0])
	}
	if !strings.HasPrefix(got[1], "<b>") {
		t.Fatalf("second chunk = %q", got[1])
	}
}
