package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

type objectStorageFake struct {
	mu    sync.Mutex
	keys  []string
	err   error
	bytes int
}

func (f *objectStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	n, _ := io.Copy(io.Discard, data)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.bytes += int(n)
	return nil
}

func (f *objectStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type ingestQueueFake struct {
	published []string
	err       error
}

func (f *ingestQueueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *ingestQueueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return nil
}

func (f *ingestQueueFake) PublishTurnEvent(context.Context, string, any) error { return nil }

func TestUploadStoresRecordsAndPublishes(t *testing.T) {
	repo := newDocRepoFake()
	storage := &objectStorageFake{}
	queue := &ingestQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue, nil)

	doc, err := uc.Upload(context.Background(), "spec sheet.pdf", "application/pdf", domain.PartitionSecure, "engineering", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Partition != domain.PartitionSecure {
		t.Fatalf("expected secure partition, got %s", doc.Partition)
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("expected uploaded status, got %s", doc.Status)
	}
	if len(storage.keys) != 1 || !strings.HasSuffix(storage.keys[0], ".pdf") {
		t.Fatalf("expected stored pdf key, got %v", storage.keys)
	}
	if strings.Contains(storage.keys[0], " ") {
		t.Fatalf("expected sanitized storage key, got %q", storage.keys[0])
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Fatalf("expected ingest event for %s, got %v", doc.ID, queue.published)
	}
}

func TestUploadRejectsUnknownPartition(t *testing.T) {
	uc := NewIngestDocumentUseCase(newDocRepoFake(), &objectStorageFake{}, &ingestQueueFake{}, nil)

	_, err := uc.Upload(context.Background(), "a.txt", "text/plain", domain.Partition("internal"), "", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUploadQueueFailureSurfacesError(t *testing.T) {
	repo := newDocRepoFake()
	queue := &ingestQueueFake{err: errors.New("nats down")}
	uc := NewIngestDocumentUseCase(repo, &objectStorageFake{}, queue, nil)

	_, err := uc.Upload(context.Background(), "a.txt", "text/plain", domain.PartitionPublic, "", strings.NewReader("x"))
	if err == nil {
		t.Fatalf("expected error when queue publish fails")
	}
	if len(repo.statuses) == 0 || repo.statuses[len(repo.statuses)-1] != domain.StatusFailed {
		t.Fatalf("expected document marked failed, got %v", repo.statuses)
	}
}
