// Package vectordb provides the embedded vector database adapter. Writes go
// through an isolated worker process so an engine crash cannot take down the
// parent, and fall back to plain JSON files when the worker fails.
package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/taleemlabs/taleemd/internal/sanitize"
	"github.com/taleemlabs/taleemd/internal/worker"
)

// payloadDir is the subdirectory of the database path where worker payload
// files are staged before handing them to the insert worker.
const payloadDir = "_payloads"

// Config holds configuration for the vector database service.
type Config struct {
	// Path is the directory for persistent storage.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// WorkerPath is the insert worker binary. Empty disables the worker and
	// routes all writes to fallback storage.
	WorkerPath string `koanf:"worker_path"`

	// WorkerTimeout bounds a single worker invocation.
	// Default: 120s
	WorkerTimeout time.Duration `koanf:"worker_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./data/vectordb"
	}
	if c.WorkerTimeout == 0 {
		c.WorkerTimeout = 120 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.WorkerTimeout <= 0 {
		return fmt.Errorf("%w: worker timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service manages collections in an embedded chromem-go database. All
// user-facing collection names are sanitized before touching the engine.
// Inserts run in a worker subprocess against the same persistent directory;
// after a successful insert the in-process handle is reloaded so reads see
// the worker's writes.
type Service struct {
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	db       *chromem.DB
	engine   map[string]bool // sanitized names registered in the engine
	fallback *fallbackStore

	runner worker.Runner
}

// NewService creates a vector database service backed by persistent storage
// at config.Path.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", config.Path, err)
	}

	db, err := chromem.NewPersistentDB(config.Path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening vector database: %w", err)
	}

	s := &Service{
		config:   config,
		logger:   logger,
		db:       db,
		engine:   make(map[string]bool),
		fallback: newFallbackStore(config.Path),
		runner:   worker.ExecRunner{},
	}

	// Collections persisted by earlier runs are available immediately.
	for name := range db.ListCollections() {
		s.engine[name] = true
	}

	logger.Info("vector database initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.Int("collections", len(s.engine)),
	)

	return s, nil
}

// noEmbedding is passed to chromem where an embedding function is required
// but never used. All embeddings arrive precomputed.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding function not available: embeddings must be precomputed")
}

// CreateCollection creates (or opens) a collection, returning the sanitized
// name the engine stores it under. Metadata, if any, is attached at
// creation time.
func (s *Service) CreateCollection(ctx context.Context, name string, metadata map[string]string) (string, error) {
	sanitized := sanitize.CollectionName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.GetOrCreateCollection(sanitized, metadata, noEmbedding); err != nil {
		return "", fmt.Errorf("creating collection %s: %w", sanitized, err)
	}
	s.engine[sanitized] = true

	s.logger.Info("collection ready",
		zap.String("collection", sanitized),
		zap.String("requested", name),
	)
	return sanitized, nil
}

// AddDocuments inserts records into a collection through the worker process.
// The payload is staged as a JSON file, the worker replays it into the
// persistent store, and the in-process handle is reloaded afterwards. If the
// worker fails for any reason the payload is written to fallback storage
// instead, so documents are never silently dropped.
func (s *Service) AddDocuments(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		return ErrEmptyDocuments
	}

	sanitized := sanitize.CollectionName(name)
	payload := buildPayload(sanitized, records)

	if s.config.WorkerPath == "" {
		return s.addViaFallback(sanitized, payload, fmt.Errorf("no worker configured"))
	}

	payloadPath, err := s.writePayloadFile(payload)
	if err != nil {
		return s.addViaFallback(sanitized, payload, err)
	}
	defer os.Remove(payloadPath)

	start := time.Now()
	output, err := s.runner.Run(ctx, s.config.WorkerTimeout, s.config.WorkerPath, s.config.Path, payloadPath)
	observeWorkerDuration(time.Since(start))
	if err != nil {
		s.logger.Warn("insert worker failed, using fallback storage",
			zap.String("collection", sanitized),
			zap.ByteString("output", output),
			zap.Error(err),
		)
		return s.addViaFallback(sanitized, payload, err)
	}

	if err := s.reloadAfterWrite(sanitized); err != nil {
		return err
	}

	recordAdd(pathEngine, len(records))
	s.logger.Info("documents added via worker",
		zap.String("collection", sanitized),
		zap.Int("count", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// writePayloadFile stages the worker payload under the database directory.
func (s *Service) writePayloadFile(payload Payload) (string, error) {
	dir := filepath.Join(s.config.Path, payloadDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating payload dir: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("payload_%s.json", payload.CollectionName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing payload file: %w", err)
	}
	return path, nil
}

// reloadAfterWrite reopens the persistent database so documents written by
// the worker process become visible to this process.
func (s *Service) reloadAfterWrite(sanitized string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := chromem.NewPersistentDB(s.config.Path, s.config.Compress)
	if err != nil {
		return fmt.Errorf("reloading database after worker write: %w", err)
	}
	s.db = db
	s.engine[sanitized] = true
	return nil
}

// addViaFallback persists the payload as a JSON file. The original worker
// error is wrapped so callers still see why the engine path was skipped.
func (s *Service) addViaFallback(sanitized string, payload Payload, cause error) error {
	if err := s.fallback.write(payload); err != nil {
		return fmt.Errorf("worker failed (%v) and fallback failed: %w", cause, err)
	}
	recordAdd(pathFallback, len(payload.Documents))
	s.logger.Info("documents stored in fallback",
		zap.String("collection", sanitized),
		zap.Int("count", len(payload.Documents)),
	)
	return nil
}

// Search returns the topK nearest documents for a precomputed query
// embedding. Collections live either in the engine or in fallback storage;
// fallback collections are searched by brute-force cosine similarity. An
// unknown collection yields empty results, not an error.
func (s *Service) Search(ctx context.Context, name string, queryEmbedding []float32, topK int) ([]QueryResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	sanitized := sanitize.CollectionName(name)

	s.mu.RLock()
	inEngine := s.engine[sanitized]
	db := s.db
	s.mu.RUnlock()

	// An engine collection can exist but be empty when its documents ended
	// up in fallback storage (worker failure after create). Only serve from
	// the engine when it actually holds documents.
	if inEngine {
		if collection := db.GetCollection(sanitized, noEmbedding); collection != nil {
			if count := collection.Count(); count > 0 {
				k := topK
				if k > count {
					k = count
				}

				results, err := collection.QueryEmbedding(ctx, queryEmbedding, k, nil, nil)
				if err != nil {
					return nil, fmt.Errorf("querying collection %s: %w", sanitized, err)
				}

				out := make([]QueryResult, len(results))
				for i, r := range results {
					out[i] = QueryResult{
						Content:  r.Content,
						Metadata: metadataFromString(r.Metadata),
						Distance: 1 - float64(r.Similarity),
					}
				}
				recordSearch(pathEngine)
				return out, nil
			}
		}
	}

	if s.fallback.exists(sanitized) {
		results, err := s.fallback.search(sanitized, queryEmbedding, topK)
		if err != nil {
			return nil, err
		}
		recordSearch(pathFallback)
		return results, nil
	}

	recordSearch(pathMiss)
	s.logger.Debug("search on unknown collection",
		zap.String("collection", sanitized),
	)
	return []QueryResult{}, nil
}

// ListCollections returns the sanitized names of all known collections,
// engine and fallback alike, sorted for stable output.
func (s *Service) ListCollections(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)

	s.mu.RLock()
	for name := range s.engine {
		seen[name] = true
	}
	s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.config.Path, fallbackDir))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("listing fallback collections: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := trimJSONExt(e.Name()); ok {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stats returns document counts and storage mode for a collection.
func (s *Service) Stats(ctx context.Context, name string) (CollectionStats, error) {
	sanitized := sanitize.CollectionName(name)

	s.mu.RLock()
	inEngine := s.engine[sanitized]
	db := s.db
	s.mu.RUnlock()

	var engineStats *CollectionStats
	if inEngine {
		if collection := db.GetCollection(sanitized, noEmbedding); collection != nil {
			engineStats = &CollectionStats{
				Name:          sanitized,
				DocumentCount: collection.Count(),
				Storage:       StorageEngine,
			}
			if engineStats.DocumentCount > 0 {
				return *engineStats, nil
			}
		}
	}

	if s.fallback.exists(sanitized) {
		payload, err := s.fallback.read(sanitized)
		if err != nil {
			return CollectionStats{}, err
		}
		return CollectionStats{
			Name:          sanitized,
			DocumentCount: len(payload.Documents),
			Storage:       StorageFallback,
		}, nil
	}

	if engineStats != nil {
		return *engineStats, nil
	}
	return CollectionStats{}, fmt.Errorf("collection %s: %w", sanitized, ErrCollectionNotFound)
}

func trimJSONExt(filename string) (string, bool) {
	const ext = ".json"
	if len(filename) <= len(ext) || filepath.Ext(filename) != ext {
		return "", false
	}
	return filename[:len(filename)-len(ext)], true
}
