// Package rag composes embedding, vector search, and worker-isolated answer
// generation into a query pipeline. Generation failures degrade to an
// extractive answer built from the retrieved context; the pipeline always
// returns something rather than failing the caller.
package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/taleemlabs/taleemd/internal/embeddings"
	"github.com/taleemlabs/taleemd/internal/vectordb"
)

// FallbackPrefix marks answers produced by the extractive fallback instead
// of the generation worker.
const FallbackPrefix = "(Fallback) "

// noDocumentsAnswer is returned when retrieval finds nothing; generation is
// skipped entirely in that case.
const noDocumentsAnswer = "No relevant documents found."

// fallbackContextLimit is how much of the retrieved context the extractive
// fallback answer carries.
const fallbackContextLimit = 400

// sourcePreviewLimit bounds the content excerpt attached to each source.
const sourcePreviewLimit = 200

// VectorStore is the collection storage the engine indexes into and
// retrieves from.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string, metadata map[string]string) (string, error)
	AddDocuments(ctx context.Context, name string, records []vectordb.Record) error
	Search(ctx context.Context, name string, queryEmbedding []float32, topK int) ([]vectordb.QueryResult, error)
}

var _ VectorStore = (*vectordb.Service)(nil)

// Document is a unit of content to index.
type Document struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Source attributes part of an answer to a retrieved document.
type Source struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// QueryResponse is the full result of a RAG query.
type QueryResponse struct {
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	Question     string   `json:"question"`
	NumRetrieved int      `json:"num_retrieved"`
}

// Engine is the RAG pipeline. All collaborators are injected.
type Engine struct {
	embedder  embeddings.Embedder
	store     VectorStore
	generator Generator
	logger    *zap.Logger
}

// NewEngine creates a RAG engine from its collaborators.
func NewEngine(embedder embeddings.Embedder, store VectorStore, generator Generator, logger *zap.Logger) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrInvalidConfig)
	}
	if generator == nil {
		return nil, fmt.Errorf("%w: generator is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		embedder:  embedder,
		store:     store,
		generator: generator,
		logger:    logger,
	}, nil
}

// IndexDocuments embeds each document and inserts the batch into the named
// collection, creating it if needed. Insertion failures are wrapped and
// returned; there is no partial-success reporting beyond the error.
func (e *Engine) IndexDocuments(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return vectordb.ErrEmptyDocuments
	}

	if _, err := e.store.CreateCollection(ctx, collection, nil); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding documents: got %d vectors for %d documents", len(vectors), len(docs))
	}

	records := make([]vectordb.Record, len(docs))
	for i, doc := range docs {
		records[i] = vectordb.Record{
			ID:         strconv.Itoa(i),
			Content:    doc.Content,
			Embeddings: vectors[i],
			Metadata:   doc.Metadata,
		}
	}

	if err := e.store.AddDocuments(ctx, collection, records); err != nil {
		return fmt.Errorf("vector db error: %w", err)
	}

	e.logger.Info("documents indexed",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Retrieve embeds the query and returns the topK nearest documents.
func (e *Engine) Retrieve(ctx context.Context, collection, query string, topK int) ([]vectordb.QueryResult, error) {
	queryEmbedding, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return e.store.Search(ctx, collection, queryEmbedding, topK)
}

// GenerateAnswer asks the generation worker to answer the question against
// the retrieved context. On any worker failure it degrades to an extractive
// answer: the fallback prefix plus the leading slice of the context. The
// second return value reports whether the degrade path was taken.
func (e *Engine) GenerateAnswer(ctx context.Context, contextText, question string) (string, bool) {
	prompt := fmt.Sprintf("\nContext: %s\n\nQuestion: %s\n\nAnswer:", contextText, question)

	answer, err := e.generator.Generate(ctx, prompt)
	if err == nil {
		return answer, false
	}

	e.logger.Warn("generation failed, degrading to extractive answer",
		zap.Error(err),
	)
	excerpt := strings.TrimSpace(firstRunes(contextText, fallbackContextLimit))
	if excerpt == "" {
		return FallbackPrefix + "Unable to generate answer at this time.", true
	}
	return FallbackPrefix + excerpt, true
}

// Query runs the full pipeline: retrieve, then generate. When retrieval
// comes back empty the generation worker is not invoked at all.
func (e *Engine) Query(ctx context.Context, collection, question string, topK int) (*QueryResponse, error) {
	retrieved, err := e.Retrieve(ctx, collection, question, topK)
	if err != nil {
		return nil, err
	}

	if len(retrieved) == 0 {
		return &QueryResponse{
			Answer:       noDocumentsAnswer,
			Sources:      []Source{},
			Question:     question,
			NumRetrieved: 0,
		}, nil
	}

	contents := make([]string, len(retrieved))
	sources := make([]Source, len(retrieved))
	for i, doc := range retrieved {
		contents[i] = doc.Content
		sources[i] = Source{
			Content:  firstRunes(doc.Content, sourcePreviewLimit),
			Metadata: doc.Metadata,
		}
	}

	answer, degraded := e.GenerateAnswer(ctx, strings.Join(contents, "\n"), question)
	if degraded {
		e.logger.Info("query answered via fallback",
			zap.String("collection", collection),
		)
	}

	return &QueryResponse{
		Answer:       answer,
		Sources:      sources,
		Question:     question,
		NumRetrieved: len(retrieved),
	}, nil
}

// firstRunes returns at most n runes of s.
func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
