// Package vectordb manages a persistent vector collection store with
// subprocess-isolated writes and JSON fallback storage.
package vectordb

import (
	"errors"
	"fmt"

	"github.com/taleemlabs/taleemd/internal/worker"
)

// Sentinel errors for vector store operations.
var (
	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrWorkerFailed indicates the insert worker exited abnormally.
	ErrWorkerFailed = worker.ErrFailed

	// ErrFallbackFailed indicates fallback persistence also failed.
	ErrFallbackFailed = errors.New("fallback persistence failed")

	// ErrCollectionNotFound indicates the collection does not exist in
	// either the engine or fallback storage.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Storage modes reported in collection stats.
const (
	StorageEngine   = "engine"
	StorageFallback = "fallback"
)

// Worker exit codes. The insert worker communicates failure class through
// its exit status; stdout/stderr carries diagnostics.
const (
	// WorkerExitOK signals a successful insert.
	WorkerExitOK = 0
	// WorkerExitUsage signals bad arguments or an unusable environment.
	WorkerExitUsage = 2
	// WorkerExitRuntime signals a runtime failure during the insert.
	WorkerExitRuntime = 3
)

// Record is a single document destined for a collection.
type Record struct {
	// ID is the record identifier. Empty IDs are assigned at payload build
	// time from the collection name and record index.
	ID string `json:"id"`

	// Content is the document text.
	Content string `json:"content"`

	// Embeddings is the precomputed embedding vector.
	Embeddings []float32 `json:"embeddings"`

	// Metadata carries additional key-value pairs.
	Metadata map[string]interface{} `json:"metadata"`
}

// Payload is the JSON document handed to the insert worker and persisted
// verbatim to fallback storage on worker failure.
type Payload struct {
	CollectionName string   `json:"collection_name"`
	Documents      []Record `json:"documents"`
}

// QueryResult is a single search hit. Distance is a true engine distance
// when the vector engine served the query, or 1 - cosine similarity when
// the fallback path did.
type QueryResult struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Distance float64                `json:"distance"`
}

// CollectionStats summarizes a registered collection.
type CollectionStats struct {
	Name          string `json:"name"`
	DocumentCount int    `json:"count"`
	Storage       string `json:"storage"`
}

// buildPayload normalizes records into a worker payload: IDs are prefixed
// with the collection name (index-derived when absent) and metadata
// defaults to source attribution.
func buildPayload(collection string, records []Record) Payload {
	docs := make([]Record, len(records))
	for i, rec := range records {
		id := rec.ID
		if id == "" {
			id = fmt.Sprintf("%d", i)
		}
		metadata := rec.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{
				"source":    collection,
				"doc_index": i,
			}
		}
		docs[i] = Record{
			ID:         fmt.Sprintf("%s_%s", collection, id),
			Content:    rec.Content,
			Embeddings: rec.Embeddings,
			Metadata:   metadata,
		}
	}
	return Payload{CollectionName: collection, Documents: docs}
}

// metadataFromString widens engine metadata back to the interface-valued
// maps used on record payloads.
func metadataFromString(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}
