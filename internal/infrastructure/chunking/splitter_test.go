package chunking

import (
	"strings"
	"testing"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	s := NewSplitter(100, 10)
	chunks := s.Split("short text")
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("expected single chunk, got %v", chunks)
	}
}

func TestSplitEmptyTextIsNil(t *testing.T) {
	s := NewSplitter(100, 10)
	if chunks := s.Split("   "); len(chunks) != 0 {
		t.Fatalf("expected no chunks for blank text, got %v", chunks)
	}
}

func TestSplitDoesNotCutWords(t *testing.T) {
	s := NewSplitter(20, 5)
	text := strings.Repeat("alpha beta gamma ", 10)

	for _, chunk := range s.Split(text) {
		for _, word := range strings.Fields(chunk) {
			switch word {
			case "alpha", "beta", "gamma":
			default:
				t.Fatalf("word cut in half: %q in chunk %q", word, chunk)
			}
		}
	}
}

func TestSplitCoversAllText(t *testing.T) {
	s := NewSplitter(50, 10)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)

	var joined strings.Builder
	for _, chunk := range s.Split(text) {
		joined.WriteString(chunk)
		joined.WriteString(" ")
	}

	// Overlap duplicates words but never drops them.
	wantWords := len(strings.Fields(text))
	gotWords := len(strings.Fields(joined.String()))
	if gotWords < wantWords {
		t.Fatalf("expected at least %d words across chunks, got %d", wantWords, gotWords)
	}
}
