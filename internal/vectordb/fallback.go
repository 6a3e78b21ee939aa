package vectordb

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
)

// fallbackDir is the subdirectory of the database path holding JSON
// fallback payloads, one file per collection.
const fallbackDir = "fallback"

// fallbackStore persists collection payloads as plain JSON files when the
// vector engine is unavailable, and serves brute-force cosine searches over
// them. Files are guarded by OS file locks against concurrent writers.
type fallbackStore struct {
	root string
}

func newFallbackStore(dbPath string) *fallbackStore {
	return &fallbackStore{root: filepath.Join(dbPath, fallbackDir)}
}

// path returns the fallback file for a sanitized collection name.
func (f *fallbackStore) path(collection string) string {
	return filepath.Join(f.root, collection+".json")
}

// exists reports whether a fallback file is present for the collection.
func (f *fallbackStore) exists(collection string) bool {
	_, err := os.Stat(f.path(collection))
	return err == nil
}

// write persists the payload verbatim, replacing any previous file for the
// same collection. The write happens under an exclusive lock and lands via
// rename so readers never observe a torn file.
func (f *fallbackStore) write(payload Payload) error {
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return fmt.Errorf("%w: creating fallback dir: %v", ErrFallbackFailed, err)
	}

	target := f.path(payload.CollectionName)
	lock := flock.New(target + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("%w: acquiring lock: %v", ErrFallbackFailed, err)
	}
	defer lock.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %v", ErrFallbackFailed, err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing payload: %v", ErrFallbackFailed, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("%w: replacing payload: %v", ErrFallbackFailed, err)
	}
	return nil
}

// read loads the payload for a collection.
func (f *fallbackStore) read(collection string) (Payload, error) {
	target := f.path(collection)
	lock := flock.New(target + ".lock")
	if err := lock.RLock(); err != nil {
		return Payload{}, fmt.Errorf("%w: acquiring read lock: %v", ErrFallbackFailed, err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(target)
	if err != nil {
		return Payload{}, fmt.Errorf("reading fallback payload: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, fmt.Errorf("decoding fallback payload: %w", err)
	}
	return payload, nil
}

// search computes brute-force cosine similarity between the query embedding
// and every stored record, returning the topK by non-increasing similarity
// with distance reported as 1 - similarity.
func (f *fallbackStore) search(collection string, queryEmbedding []float32, topK int) ([]QueryResult, error) {
	payload, err := f.read(collection)
	if err != nil {
		return nil, err
	}
	if len(payload.Documents) == 0 {
		return []QueryResult{}, nil
	}

	type scored struct {
		idx int
		sim float64
	}
	sims := make([]scored, len(payload.Documents))
	for i, doc := range payload.Documents {
		sims[i] = scored{idx: i, sim: cosine32(queryEmbedding, doc.Embeddings)}
	}

	sort.SliceStable(sims, func(i, j int) bool {
		return sims[i].sim > sims[j].sim
	})
	if topK < len(sims) {
		sims = sims[:topK]
	}

	results := make([]QueryResult, len(sims))
	for i, s := range sims {
		doc := payload.Documents[s.idx]
		results[i] = QueryResult{
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Distance: 1 - s.sim,
		}
	}
	return results, nil
}

// cosine32 computes cosine similarity over raw float32 slices. A small
// epsilon keeps zero-magnitude vectors from dividing by zero.
func cosine32(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + 1e-12)
}
