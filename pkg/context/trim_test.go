package context_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	agentctx "github.com/easyops/storyctx/pkg/context"
)

func TestTrim(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		allowed int
		want    string
	}{
		{"zero allowance", "anything", 0, ""},
		{"negative allowance", "anything", -3, ""},
		{"fits unchanged", "short", 2, "short"},
		{"exactly fits", "12345678", 2, "12345678"},
		{"whole lines kept", "line one\nline two\nline three", 4, "line one"},
		{"two lines fit with newline", "aaaa\nbbb\ncccccccc", 3, "aaaa\nbbb"},
		{"first line too long slices", "abcdefghijklmnop\nxyz", 2, "abcdefgh"},
		{"leading empty line then long", "\nabcdefghijkl", 1, "\nabc"},
		{"multibyte slice", "世界和平世界和平世界和平", 1, "世界和平"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := agentctx.Trim(tt.text, tt.allowed); got != tt.want {
				t.Errorf("Trim(%q, %d) = %q, want %q", tt.text, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestTrim_BoundAndIdempotent(t *testing.T) {
	texts := []string{
		"",
		"single line without breaks that is fairly long",
		"a\nbb\nccc\ndddd\neeeee\nffffff",
		strings.Repeat("word ", 200),
		"\n\n\nblank lines first\nthen text",
		"Races: elves, dwarves\nFactions: Ashen Guild\nBiomes: salt flats, mangroves\nPrices: bread 2c",
	}

	for _, text := range texts {
		for n := 0; n <= 30; n++ {
			once := agentctx.Trim(text, n)
			if got := utf8.RuneCountInString(once); got > agentctx.CharsPerToken*n {
				t.Errorf("Trim(%q, %d) has %d chars, exceeds %d", text, n, got, agentctx.CharsPerToken*n)
			}
			if twice := agentctx.Trim(once, n); twice != once {
				t.Errorf("Trim not idempotent for %q, n=%d: %q != %q", text, n, twice, once)
			}
		}
	}
}
