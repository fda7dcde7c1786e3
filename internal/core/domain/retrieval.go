package domain

// Partition is the isolation boundary between knowledge sets. Every chunk
// and every retriever belongs to exactly one partition.
type Partition string

const (
	PartitionPublic Partition = "public"
	PartitionSecure Partition = "secure"
)

func (p Partition) Valid() bool {
	return p == PartitionPublic || p == PartitionSecure
}

type ChunkMetadata struct {
	Source    string    `json:"source"`
	Page      int       `json:"page"`
	DocID     string    `json:"doc_id"`
	Partition Partition `json:"partition"`
	Type      string    `json:"type,omitempty"`
}

// Chunk is an immutable retrieval unit with provenance metadata.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// RankedList is one backend's ordered result for one query, rank 0 first.
type RankedList []Chunk
