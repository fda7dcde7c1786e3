package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/aerodocs/docuchat/internal/core/domain"
	"github.com/aerodocs/docuchat/internal/core/ports"
)

const (
	RetrieverKindDense   = "dense"
	RetrieverKindLexical = "lexical"

	defaultRetrieverTimeout = 10 * time.Second
)

// DenseRetriever wraps one embedding index scoped to one partition.
type DenseRetriever struct {
	embedder  ports.Embedder
	index     ports.VectorIndex
	partition domain.Partition
	timeout   time.Duration
}

func NewDenseRetriever(embedder ports.Embedder, index ports.VectorIndex, partition domain.Partition, timeout time.Duration) *DenseRetriever {
	if timeout <= 0 {
		timeout = defaultRetrieverTimeout
	}
	return &DenseRetriever{
		embedder:  embedder,
		index:     index,
		partition: partition,
		timeout:   timeout,
	}
}

func (r *DenseRetriever) Partition() domain.Partition { return r.partition }
func (r *DenseRetriever) Kind() string                { return RetrieverKindDense }

func (r *DenseRetriever) Query(ctx context.Context, standaloneQuery string, limit int) (domain.RankedList, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vector, err := r.embedder.EmbedQuery(ctx, standaloneQuery)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieverUnavailable, fmt.Sprintf("dense embed (%s)", r.partition), err)
	}

	chunks, err := r.index.Search(ctx, r.partition, vector, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieverUnavailable, fmt.Sprintf("dense search (%s)", r.partition), err)
	}
	return stampPartition(chunks, r.partition), nil
}

// LexicalRetriever wraps one keyword index scoped to one partition.
type LexicalRetriever struct {
	index     ports.VectorIndex
	partition domain.Partition
	timeout   time.Duration
}

func NewLexicalRetriever(index ports.VectorIndex, partition domain.Partition, timeout time.Duration) *LexicalRetriever {
	if timeout <= 0 {
		timeout = defaultRetrieverTimeout
	}
	return &LexicalRetriever{
		index:     index,
		partition: partition,
		timeout:   timeout,
	}
}

func (r *LexicalRetriever) Partition() domain.Partition { return r.partition }
func (r *LexicalRetriever) Kind() string                { return RetrieverKindLexical }

func (r *LexicalRetriever) Query(ctx context.Context, standaloneQuery string, limit int) (domain.RankedList, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	chunks, err := r.index.SearchLexical(ctx, r.partition, standaloneQuery, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieverUnavailable, fmt.Sprintf("lexical search (%s)", r.partition), err)
	}
	return stampPartition(chunks, r.partition), nil
}

// stampPartition enforces the no-cross-contamination invariant: a chunk
// tagged with a different partition than its producing retriever is dropped,
// untagged chunks inherit the retriever's partition.
func stampPartition(chunks []domain.Chunk, partition domain.Partition) domain.RankedList {
	out := make(domain.RankedList, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Metadata.Partition == "" {
			chunk.Metadata.Partition = partition
		}
		if chunk.Metadata.Partition != partition {
			continue
		}
		out = append(out, chunk)
	}
	return out
}
