package usecase

import (
	"sort"
	"strings"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

const defaultRRFK = 60

// WeightedList pairs one backend's ranked output with its fusion weight.
// Weights need not sum to anything in particular.
type WeightedList struct {
	Chunks domain.RankedList
	Weight float64
}

type fusedCandidate struct {
	chunk    domain.Chunk
	score    float64
	bestRank int
}

// FuseRRF merges independently ranked lists into one ordering via weighted
// Reciprocal Rank Fusion: score(chunk) = sum over lists of weight/(rank+k).
//
// Chunks are deduplicated by whitespace-normalized content; the first-seen
// chunk keeps its metadata. Ties break on the best original rank across
// lists, then source, then content, so the output is identical for any
// supply order of the same weighted lists. Empty input yields an empty
// list, not an error.
func FuseRRF(lists []WeightedList, rrfK int) domain.RankedList {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate)
	order := make([]string, 0)
	for _, list := range lists {
		for rank, chunk := range list.Chunks {
			key := fusionKey(chunk.Content)
			if key == "" {
				continue
			}
			candidate, ok := acc[key]
			if !ok {
				candidate = &fusedCandidate{chunk: chunk, bestRank: rank}
				acc[key] = candidate
				order = append(order, key)
			}
			if rank < candidate.bestRank {
				candidate.bestRank = rank
			}
			candidate.score += list.Weight / float64(rank+rrfK)
		}
	}
	if len(acc) == 0 {
		return domain.RankedList{}
	}

	out := make([]*fusedCandidate, 0, len(acc))
	for _, key := range order {
		out = append(out, acc[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].bestRank != out[j].bestRank {
			return out[i].bestRank < out[j].bestRank
		}
		if out[i].chunk.Metadata.Source != out[j].chunk.Metadata.Source {
			return out[i].chunk.Metadata.Source < out[j].chunk.Metadata.Source
		}
		return out[i].chunk.Content < out[j].chunk.Content
	})

	fused := make(domain.RankedList, 0, len(out))
	for _, c := range out {
		fused = append(fused, c.chunk)
	}
	return fused
}

func trimRanked(list domain.RankedList, limit int) domain.RankedList {
	if limit <= 0 || len(list) <= limit {
		return list
	}
	return list[:limit]
}

// fusionKey normalizes whitespace so re-wrapped copies of the same passage
// collapse to one candidate. Content remains the identity, per contract.
func fusionKey(content string) string {
	return strings.Join(strings.Fields(content), " ")
}
