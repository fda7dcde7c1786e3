package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// sparseVector is the qdrant wire form of a hashed bag-of-words vector.
// Term weights follow BM25 saturation so repeated terms stop dominating.
type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	bm25K1        = 1.2
	sourceBoost   = 1.5
	maxTermCount  = 256
	zeroHashIndex = 1
)

func encodeSparseDocument(text, source string) sparseVector {
	freq := make(map[uint32]float64, 64)
	accumulate(freq, tokenize(text), 1.0)
	accumulate(freq, tokenize(source), sourceBoost)
	return toSparse(freq)
}

func encodeSparseQuery(query string) sparseVector {
	freq := make(map[uint32]float64, 32)
	accumulate(freq, tokenize(query), 1.0)
	return toSparse(freq)
}

func accumulate(dst map[uint32]float64, tokens []string, weight float64) {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		dst[hashToken(token)] += weight
	}
}

func toSparse(freq map[uint32]float64) sparseVector {
	if len(freq) == 0 {
		return sparseVector{}
	}

	indices := make([]uint32, 0, len(freq))
	for idx := range freq {
		indices = append(indices, idx)
	}
	if len(indices) > maxTermCount {
		// Drop the lightest terms first. Ties break on index so the cap is
		// deterministic.
		sort.Slice(indices, func(i, j int) bool {
			if freq[indices[i]] != freq[indices[j]] {
				return freq[indices[i]] > freq[indices[j]]
			}
			return indices[i] < indices[j]
		})
		indices = indices[:maxTermCount]
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		tf := freq[idx]
		weight := (tf * (bm25K1 + 1.0)) / (tf + bm25K1)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}

	return sparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum32()
	if sum == 0 {
		return zeroHashIndex
	}
	return sum
}

// tokenize lowercases and splits on anything that is not a letter or digit.
// Unicode letters are kept so non-ASCII documents stay searchable.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
