package data

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/minio"
)

// objectStore is the part of the MinIO client the archive uses.
type objectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) error
}

var _ objectStore = (*minio.Client)(nil)

// MinIOArchive stores run artifacts under runs/{run_id}/.
type MinIOArchive struct {
	store  objectStore
	prefix string
}

func NewMinIOArchive(client *minio.Client, prefix string) *MinIOArchive {
	return newArchive(client, prefix)
}

func newArchive(store objectStore, prefix string) *MinIOArchive {
	if prefix == "" {
		prefix = "runs"
	}
	return &MinIOArchive{store: store, prefix: prefix}
}

// DocumentKey is where the source text of a run is stored.
func (a *MinIOArchive) DocumentKey(runID string) string {
	return minio.JoinKey(a.prefix, runID, "document.txt")
}

// ResultKey is where the final record of a run is stored.
func (a *MinIOArchive) ResultKey(runID string) string {
	return minio.JoinKey(a.prefix, runID, "result.json")
}

func (a *MinIOArchive) StoreDocument(ctx context.Context, runID string, doc *types.Document) error {
	meta := map[string]string{"run-id": runID}
	if doc.Source != "" {
		meta["source"] = doc.Source
	}
	if doc.Encoding != "" {
		meta["encoding"] = doc.Encoding
	}
	if err := a.store.PutObject(ctx, a.DocumentKey(runID), []byte(doc.Content), "text/plain; charset=utf-8", meta); err != nil {
		return fmt.Errorf("archive document: %w", err)
	}
	return nil
}

func (a *MinIOArchive) StoreResult(ctx context.Context, runID string, result *types.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := a.store.PutObject(ctx, a.ResultKey(runID), data, "application/json", map[string]string{"run-id": runID}); err != nil {
		return fmt.Errorf("archive result: %w", err)
	}
	return nil
}
