package chunking

import "strings"

// Splitter cuts text into overlapping rune windows. Window edges snap back
// to the nearest whitespace so words are not cut in half.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapToWhitespace(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		// The next window starts relative to the snapped end so no text
		// between windows is ever skipped.
		next := end - s.Overlap
		if next <= start {
			next = start + step
		}
		next = snapStartForward(runes, next)
		if next > end || next <= start {
			next = end
		}
		start = next
	}
	return out
}

// snapStartForward moves an overlap start forward past a partially covered
// word so no chunk begins mid-word. The previous chunk already carries the
// skipped characters.
func snapStartForward(runes []rune, start int) int {
	const maxAdvance = 80
	for i := start; i < start+maxAdvance && i < len(runes); i++ {
		if i == 0 {
			return i
		}
		switch runes[i-1] {
		case ' ', '\t', '\n', '\r':
			return i
		}
	}
	return start
}

// snapToWhitespace walks end backwards to the last whitespace inside the
// window. The search is capped so a window with no whitespace at all is
// still emitted whole.
func snapToWhitespace(runes []rune, start, end int) int {
	const maxBacktrack = 80
	for i := end; i > end-maxBacktrack && i > start; i-- {
		switch runes[i-1] {
		case ' ', '\t', '\n', '\r':
			return i
		}
	}
	return end
}
