package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleemlabs/taleemd/internal/vectordb"
	"github.com/taleemlabs/taleemd/internal/worker"
)

// fakeEmbedder returns fixed-size vectors derived from text length.
type fakeEmbedder struct {
	docCalls   int
	queryCalls int
	fail       bool
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.docCalls++
	if f.fail {
		return nil, errors.New("embedder offline")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.queryCalls++
	if f.fail {
		return nil, errors.New("embedder offline")
	}
	return []float32{float32(len(text)), 1}, nil
}

// fakeStore records calls and serves canned search results.
type fakeStore struct {
	created []string
	added   map[string][]vectordb.Record
	results []vectordb.QueryResult
	addErr  error
}

func newFakeStore(results ...vectordb.QueryResult) *fakeStore {
	return &fakeStore{added: make(map[string][]vectordb.Record), results: results}
}

func (f *fakeStore) CreateCollection(ctx context.Context, name string, metadata map[string]string) (string, error) {
	f.created = append(f.created, name)
	return name, nil
}

func (f *fakeStore) AddDocuments(ctx context.Context, name string, records []vectordb.Record) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added[name] = append(f.added[name], records...)
	return nil
}

func (f *fakeStore) Search(ctx context.Context, name string, queryEmbedding []float32, topK int) ([]vectordb.QueryResult, error) {
	if topK < len(f.results) {
		return f.results[:topK], nil
	}
	return f.results, nil
}

// countingGenerator returns a canned answer or error and counts calls.
type countingGenerator struct {
	calls  int
	answer string
	err    error
}

func (g *countingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func newTestEngine(t *testing.T, store VectorStore, gen Generator) *Engine {
	t.Helper()
	engine, err := NewEngine(&fakeEmbedder{}, store, gen, nil)
	require.NoError(t, err)
	return engine
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	store := newFakeStore()
	gen := &countingGenerator{}

	_, err := NewEngine(nil, store, gen, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(&fakeEmbedder{}, nil, gen, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(&fakeEmbedder{}, store, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestIndexDocuments(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store, &countingGenerator{})

	err := engine.IndexDocuments(context.Background(), "physics", []Document{
		{Content: "force equals mass times acceleration"},
		{Content: "energy is conserved", Metadata: map[string]interface{}{"chapter": "2"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"physics"}, store.created)
	records := store.added["physics"]
	require.Len(t, records, 2)
	assert.Equal(t, "0", records[0].ID)
	assert.Equal(t, "1", records[1].ID)
	assert.NotEmpty(t, records[0].Embeddings)
	assert.Equal(t, "2", records[1].Metadata["chapter"])
}

func TestIndexDocumentsEmpty(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), &countingGenerator{})

	err := engine.IndexDocuments(context.Background(), "physics", nil)
	assert.ErrorIs(t, err, vectordb.ErrEmptyDocuments)
}

func TestIndexDocumentsEmbedderFailure(t *testing.T) {
	store := newFakeStore()
	engine, err := NewEngine(&fakeEmbedder{fail: true}, store, &countingGenerator{}, nil)
	require.NoError(t, err)

	err = engine.IndexDocuments(context.Background(), "physics", []Document{{Content: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding documents")
	assert.Empty(t, store.added["physics"])
}

func TestIndexDocumentsStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.addErr = errors.New("disk full")
	engine := newTestEngine(t, store, &countingGenerator{})

	err := engine.IndexDocuments(context.Background(), "physics", []Document{{Content: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector db error")
}

func TestQueryShortCircuitsOnEmptyRetrieval(t *testing.T) {
	gen := &countingGenerator{answer: "should never be used"}
	engine := newTestEngine(t, newFakeStore(), gen)

	resp, err := engine.Query(context.Background(), "physics", "what is force?", 3)
	require.NoError(t, err)

	assert.Equal(t, "No relevant documents found.", resp.Answer)
	assert.Equal(t, 0, resp.NumRetrieved)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, "what is force?", resp.Question)
	assert.Equal(t, 0, gen.calls, "generation must not run when retrieval is empty")
}

func TestQueryGeneratesAnswer(t *testing.T) {
	store := newFakeStore(
		vectordb.QueryResult{Content: "Force equals mass times acceleration.", Metadata: map[string]interface{}{"source": "physics.pdf"}},
		vectordb.QueryResult{Content: "Acceleration is the rate of change of velocity.", Metadata: map[string]interface{}{"source": "physics.pdf"}},
	)
	gen := &countingGenerator{answer: "Force is mass times acceleration."}
	engine := newTestEngine(t, store, gen)

	resp, err := engine.Query(context.Background(), "physics", "what is force?", 3)
	require.NoError(t, err)

	assert.Equal(t, "Force is mass times acceleration.", resp.Answer)
	assert.Equal(t, 2, resp.NumRetrieved)
	assert.Equal(t, 1, gen.calls)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "Force equals mass times acceleration.", resp.Sources[0].Content)
	assert.Equal(t, "physics.pdf", resp.Sources[0].Metadata["source"])
}

func TestQuerySourcePreviewTruncation(t *testing.T) {
	long := strings.Repeat("a", 500)
	store := newFakeStore(vectordb.QueryResult{Content: long})
	engine := newTestEngine(t, store, &countingGenerator{answer: "ok"})

	resp, err := engine.Query(context.Background(), "notes", "anything", 1)
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Len(t, resp.Sources[0].Content, 200)
}

func TestQueryFallsBackWhenGenerationFails(t *testing.T) {
	content := strings.Repeat("Photosynthesis converts light energy into chemical energy. ", 10)
	store := newFakeStore(vectordb.QueryResult{Content: content})
	gen := &countingGenerator{err: ErrGenerationFailed}
	engine := newTestEngine(t, store, gen)

	resp, err := engine.Query(context.Background(), "biology", "what is photosynthesis?", 1)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.Answer, FallbackPrefix))
	excerpt := strings.TrimPrefix(resp.Answer, FallbackPrefix)
	assert.Equal(t, strings.TrimSpace(content[:400]), excerpt)
	assert.Equal(t, 1, resp.NumRetrieved)
}

func TestGenerateAnswerFallbackOnEmptyContext(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), &countingGenerator{err: errors.New("down")})

	answer, degraded := engine.GenerateAnswer(context.Background(), "", "question?")
	assert.True(t, degraded)
	assert.Equal(t, FallbackPrefix+"Unable to generate answer at this time.", answer)
}

// timeoutRunner simulates a worker that never finishes within its deadline.
type timeoutRunner struct{}

func (timeoutRunner) Run(ctx context.Context, timeout time.Duration, bin string, args ...string) ([]byte, error) {
	return nil, fmt.Errorf("%w: timed out after %s", worker.ErrFailed, timeout)
}

func TestWorkerTimeoutDegradesToExtractiveAnswer(t *testing.T) {
	gen, err := NewWorkerGenerator(GeneratorConfig{WorkerPath: "genworker"}, nil)
	require.NoError(t, err)
	gen.runner = timeoutRunner{}

	content := strings.Repeat("Matrices are rectangular arrays of numbers. ", 12)
	store := newFakeStore(vectordb.QueryResult{Content: content})
	engine := newTestEngine(t, store, gen)

	resp, err := engine.Query(context.Background(), "math", "what is a matrix?", 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Answer, FallbackPrefix))
	assert.Contains(t, resp.Answer, strings.TrimSpace(content[:400]))
}

// cannedRunner returns fixed stdout bytes.
type cannedRunner struct {
	stdout []byte
	err    error
}

func (r cannedRunner) Run(ctx context.Context, timeout time.Duration, bin string, args ...string) ([]byte, error) {
	return r.stdout, r.err
}

func TestWorkerGeneratorParsesOutput(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		want    string
		wantErr bool
	}{
		{name: "success", stdout: `{"generated_text": "  An answer.  "}`, want: "An answer."},
		{name: "worker error", stdout: `{"error": "model load failed"}`, wantErr: true},
		{name: "malformed", stdout: "not json", wantErr: true},
		{name: "empty text", stdout: `{"generated_text": ""}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewWorkerGenerator(GeneratorConfig{WorkerPath: "genworker"}, nil)
			require.NoError(t, err)
			gen.runner = cannedRunner{stdout: []byte(tt.stdout)}

			answer, err := gen.Generate(context.Background(), "prompt")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrGenerationFailed)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, answer)
			}
		})
	}
}

func TestGeneratorConfigDefaults(t *testing.T) {
	cfg := GeneratorConfig{WorkerPath: "genworker"}
	cfg.ApplyDefaults()

	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 256, cfg.MaxNewTokens)
}

func TestGeneratorConfigValidate(t *testing.T) {
	cfg := GeneratorConfig{}
	cfg.ApplyDefaults()
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
