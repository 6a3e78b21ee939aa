// Vecworker performs a single vector database insert in an isolated
// process. The parent stages a JSON payload and invokes:
//
//	vecworker <db_path> <payload_json_path>
//
// Exit codes: 0 on success, 2 on bad arguments or unreadable payload,
// 3 on a runtime failure during the insert. Diagnostics go to stderr.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"

	"github.com/taleemlabs/taleemd/internal/vectordb"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: vecworker <db_path> <payload_json_path>")
		return vectordb.WorkerExitUsage
	}
	dbPath, payloadPath := args[0], args[1]

	data, err := os.ReadFile(payloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading payload: %v\n", err)
		return vectordb.WorkerExitUsage
	}

	var payload vectordb.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		fmt.Fprintf(os.Stderr, "decoding payload: %v\n", err)
		return vectordb.WorkerExitUsage
	}
	if payload.CollectionName == "" || len(payload.Documents) == 0 {
		fmt.Fprintln(os.Stderr, "payload missing collection name or documents")
		return vectordb.WorkerExitUsage
	}

	if err := insert(dbPath, payload); err != nil {
		fmt.Fprintf(os.Stderr, "insert failed: %v\n", err)
		return vectordb.WorkerExitRuntime
	}

	fmt.Printf("inserted %d documents into %s\n", len(payload.Documents), payload.CollectionName)
	return vectordb.WorkerExitOK
}

func insert(dbPath string, payload vectordb.Payload) error {
	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Embeddings arrive precomputed; the embedding function is never called.
	collection, err := db.GetOrCreateCollection(payload.CollectionName, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("opening collection: %w", err)
	}

	docs := make([]chromem.Document, len(payload.Documents))
	for i, rec := range payload.Documents {
		if len(rec.Embeddings) == 0 {
			return fmt.Errorf("document %s has no embedding", rec.ID)
		}
		metadata := make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			metadata[k] = fmt.Sprintf("%v", v)
		}
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   rec.Content,
			Metadata:  metadata,
			Embedding: rec.Embeddings,
		}
	}

	return collection.AddDocuments(context.Background(), docs, 1)
}

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding function not available: embeddings must be precomputed")
}
