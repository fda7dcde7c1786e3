package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

type embedderFake struct {
	err error
}

func (f *embedderFake) Embed(context.Context, []string) ([][]float32, error) { return nil, f.err }
func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type indexFake struct {
	dense     []domain.Chunk
	lexical   []domain.Chunk
	denseErr  error
	lexErr    error
	partition domain.Partition
}

func (f *indexFake) IndexChunks(context.Context, *domain.Document, []string, [][]float32) error {
	return nil
}

func (f *indexFake) Search(_ context.Context, partition domain.Partition, _ []float32, _ int) ([]domain.Chunk, error) {
	f.partition = partition
	if f.denseErr != nil {
		return nil, f.denseErr
	}
	return f.dense, nil
}

func (f *indexFake) SearchLexical(_ context.Context, partition domain.Partition, _ string, _ int) ([]domain.Chunk, error) {
	f.partition = partition
	if f.lexErr != nil {
		return nil, f.lexErr
	}
	return f.lexical, nil
}

func TestDenseRetrieverWrapsBackendFailure(t *testing.T) {
	r := NewDenseRetriever(&embedderFake{}, &indexFake{denseErr: errors.New("timeout")}, domain.PartitionPublic, time.Second)

	_, err := r.Query(context.Background(), "q", 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrRetrieverUnavailable) {
		t.Fatalf("expected ErrRetrieverUnavailable, got %v", err)
	}
}

func TestDenseRetrieverWrapsEmbedFailure(t *testing.T) {
	r := NewDenseRetriever(&embedderFake{err: errors.New("embed down")}, &indexFake{}, domain.PartitionPublic, time.Second)

	_, err := r.Query(context.Background(), "q", 5)
	if !domain.IsKind(err, domain.ErrRetrieverUnavailable) {
		t.Fatalf("expected ErrRetrieverUnavailable, got %v", err)
	}
}

func TestLexicalRetrieverQueriesOwnPartition(t *testing.T) {
	index := &indexFake{lexical: []domain.Chunk{{Content: "hit"}}}
	r := NewLexicalRetriever(index, domain.PartitionSecure, time.Second)

	list, err := r.Query(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if index.partition != domain.PartitionSecure {
		t.Fatalf("expected secure partition query, got %s", index.partition)
	}
	if len(list) != 1 || list[0].Metadata.Partition != domain.PartitionSecure {
		t.Fatalf("expected partition stamped on untagged chunk, got %+v", list)
	}
}

func TestStampPartitionDropsCrossContamination(t *testing.T) {
	chunks := []domain.Chunk{
		{Content: "ok", Metadata: domain.ChunkMetadata{Partition: domain.PartitionPublic}},
		{Content: "foreign", Metadata: domain.ChunkMetadata{Partition: domain.PartitionSecure}},
		{Content: "untagged"},
	}

	out := stampPartition(chunks, domain.PartitionPublic)
	if len(out) != 2 {
		t.Fatalf("expected foreign-partition chunk dropped, got %d chunks", len(out))
	}
	for _, c := range out {
		if c.Metadata.Partition != domain.PartitionPublic {
			t.Fatalf("expected public partition tag, got %+v", c.Metadata)
		}
	}
}
