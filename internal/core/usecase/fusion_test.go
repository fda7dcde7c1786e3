package usecase

import (
	"testing"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

func chunk(content, source string, page int) domain.Chunk {
	return domain.Chunk{
		Content: content,
		Metadata: domain.ChunkMetadata{
			Source:    source,
			Page:      page,
			Partition: domain.PartitionPublic,
		},
	}
}

func contents(list domain.RankedList) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Content)
	}
	return out
}

func TestFuseRRFWorkedExample(t *testing.T) {
	// A (0.5) = [doc1, doc2, doc3]; B (0.5) = [doc3, doc1]; k=60.
	// doc1 = 0.5/60 + 0.5/61, doc3 = 0.5/62 + 0.5/60, doc2 = 0.5/61.
	listA := WeightedList{
		Chunks: domain.RankedList{chunk("doc1", "a.pdf", 1), chunk("doc2", "a.pdf", 2), chunk("doc3", "a.pdf", 3)},
		Weight: 0.5,
	}
	listB := WeightedList{
		Chunks: domain.RankedList{chunk("doc3", "b.pdf", 7), chunk("doc1", "b.pdf", 8)},
		Weight: 0.5,
	}

	fused := FuseRRF([]WeightedList{listA, listB}, 60)

	want := []string{"doc1", "doc3", "doc2"}
	got := contents(fused)
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s (full order %v)", i, want[i], got[i], got)
		}
	}
}

func TestFuseRRFDeterministicUnderListPermutation(t *testing.T) {
	listA := WeightedList{
		Chunks: domain.RankedList{chunk("alpha", "a.pdf", 1), chunk("beta", "a.pdf", 2), chunk("gamma", "a.pdf", 3)},
		Weight: 0.7,
	}
	listB := WeightedList{
		Chunks: domain.RankedList{chunk("gamma", "b.pdf", 4), chunk("delta", "b.pdf", 5), chunk("alpha", "b.pdf", 6)},
		Weight: 0.3,
	}

	forward := contents(FuseRRF([]WeightedList{listA, listB}, 60))
	reversed := contents(FuseRRF([]WeightedList{listB, listA}, 60))

	if len(forward) != len(reversed) {
		t.Fatalf("length differs: %v vs %v", forward, reversed)
	}
	for i := range forward {
		if forward[i] != reversed[i] {
			t.Fatalf("order differs at %d: %v vs %v", i, forward, reversed)
		}
	}
}

func TestFuseRRFDeduplicatesAndKeepsFirstSeenMetadata(t *testing.T) {
	listA := WeightedList{
		Chunks: domain.RankedList{chunk("shared passage", "first.pdf", 3)},
		Weight: 0.5,
	}
	listB := WeightedList{
		Chunks: domain.RankedList{chunk("shared passage", "second.pdf", 9)},
		Weight: 0.5,
	}

	fused := FuseRRF([]WeightedList{listA, listB}, 60)
	if len(fused) != 1 {
		t.Fatalf("expected 1 deduplicated chunk, got %d", len(fused))
	}
	if fused[0].Metadata.Source != "first.pdf" || fused[0].Metadata.Page != 3 {
		t.Fatalf("expected first-seen metadata to win, got %+v", fused[0].Metadata)
	}
}

func TestFuseRRFDedupScoreSummation(t *testing.T) {
	// "both" appears at rank 1 in two lists; "solo" at rank 0 in one.
	// both = 0.5/61 + 0.5/61 > solo = 0.5/60, so summation must promote it.
	listA := WeightedList{
		Chunks: domain.RankedList{chunk("solo", "a.pdf", 1), chunk("both", "a.pdf", 2)},
		Weight: 0.5,
	}
	listB := WeightedList{
		Chunks: domain.RankedList{chunk("other", "b.pdf", 1), chunk("both", "b.pdf", 2)},
		Weight: 0.5,
	}

	fused := FuseRRF([]WeightedList{listA, listB}, 60)
	if fused[0].Content != "both" {
		t.Fatalf("expected summed score to rank 'both' first, got %v", contents(fused))
	}
}

func TestFuseRRFNormalizesWhitespaceIdentity(t *testing.T) {
	listA := WeightedList{
		Chunks: domain.RankedList{chunk("same  passage\n", "a.pdf", 1)},
		Weight: 0.5,
	}
	listB := WeightedList{
		Chunks: domain.RankedList{chunk("same passage", "b.pdf", 2)},
		Weight: 0.5,
	}

	fused := FuseRRF([]WeightedList{listA, listB}, 60)
	if len(fused) != 1 {
		t.Fatalf("expected whitespace variants to collapse, got %d chunks", len(fused))
	}
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	if got := FuseRRF(nil, 60); len(got) != 0 {
		t.Fatalf("expected empty output for no lists, got %v", got)
	}
	empty := []WeightedList{
		{Chunks: domain.RankedList{}, Weight: 0.5},
		{Chunks: nil, Weight: 0.5},
	}
	if got := FuseRRF(empty, 60); len(got) != 0 {
		t.Fatalf("expected empty output for all-empty lists, got %v", got)
	}
}

func TestTrimRanked(t *testing.T) {
	list := domain.RankedList{chunk("a", "s", 1), chunk("b", "s", 2), chunk("c", "s", 3)}
	if got := trimRanked(list, 2); len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got := trimRanked(list, 0); len(got) != 3 {
		t.Fatalf("expected no trim for limit 0, got %d", len(got))
	}
}
