package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Scoring constants for keyword search.
const (
	exactPhraseBonus    = 5.0
	wordMatchBonus      = 1.0
	keywordMatchBonus   = 2.0
	partialKeywordBonus = 0.5
	curriculumBoost     = 1.1
)

// Config holds document store configuration.
type Config struct {
	// PDFChunkSize is the chunk size in characters for PDF pages.
	PDFChunkSize int `koanf:"pdf_chunk_size"`

	// TextChunkSize is the chunk size in characters for raw text.
	TextChunkSize int `koanf:"text_chunk_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.PDFChunkSize == 0 {
		c.PDFChunkSize = 1000
	}
	if c.TextChunkSize == 0 {
		c.TextChunkSize = 500
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.PDFChunkSize < 0 || c.TextChunkSize < 0 {
		return fmt.Errorf("chunk sizes must be non-negative")
	}
	return nil
}

// Store is an in-memory document store with keyword-ranked search and a
// TF-IDF fallback ranking.
//
// Keyword scoring is the primary ranking: exact phrase and per-word content
// matches plus metadata keyword matches, with a multiplier for curriculum
// chunks, normalized so the top result scores 1.0. When keyword scoring
// finds nothing, the store falls back to cosine similarity over the TF-IDF
// index.
//
// The TF-IDF index rebuilds lazily: additions mark it dirty and the next
// search that needs it rebuilds once, so a burst of small additions does not
// trigger a rebuild per document.
type Store struct {
	mu sync.RWMutex

	docs   []Document
	vecs   []SparseVector
	vec    *Vectorizer
	dirty  bool
	config Config
	pdf    PDFExtractor
	logger *zap.Logger
}

// NewStore creates a document store. extractor may be nil, in which case
// AddPDF uses the pdfcpu extractor.
func NewStore(config Config, extractor PDFExtractor, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if extractor == nil {
		extractor = NewPDFCPUExtractor()
	}

	return &Store{
		vec:    NewVectorizer(),
		config: config,
		pdf:    extractor,
		logger: logger,
	}, nil
}

// Add appends a single document and marks the TF-IDF index dirty.
func (s *Store) Add(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	s.dirty = true
}

// Len returns the number of indexed document chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Reset drops every indexed document and the vocabulary.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.vecs = nil
	s.vec = NewVectorizer()
	s.dirty = false
}

// AddPDF extracts a PDF page by page, splits each page into fixed-size
// chunks and indexes one document per chunk.
//
// Pages that yield no text are skipped silently. On extraction error the
// store keeps any chunks added before the failure; there is no rollback.
func (s *Store) AddPDF(ctx context.Context, path, documentName string) error {
	pages, err := s.pdf.ExtractPages(ctx, path)
	if err != nil {
		return fmt.Errorf("adding pdf %s: %w", documentName, err)
	}

	added := 0
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		for _, chunk := range chunkRunes(page.Text, s.config.PDFChunkSize) {
			s.Add(Document{
				Content:    chunk,
				Source:     fmt.Sprintf("%s (Page %d)", documentName, page.PageNumber),
				SourceType: SourcePDF,
				Metadata: map[string]interface{}{
					"page":     page.PageNumber,
					"document": documentName,
				},
			})
			added++
		}
	}

	s.logger.Info("indexed pdf",
		zap.String("document", documentName),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", added),
	)
	return nil
}

// AddText splits raw text into fixed-size chunks and indexes them under the
// given source name. Blank input is a no-op.
func (s *Store) AddText(text, sourceName string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	added := 0
	for _, chunk := range chunkRunes(text, s.config.TextChunkSize) {
		s.Add(Document{
			Content:    chunk,
			Source:     sourceName,
			SourceType: SourceText,
		})
		added++
	}

	s.logger.Debug("indexed text",
		zap.String("source", sourceName),
		zap.Int("chunks", added),
	)
}

// Search ranks documents against the query.
//
// Every document scores: +5 for an exact substring match of the lowercased
// query, +1 per query word found in the content, +2 per metadata keyword
// overlapping the query, +0.5 per query word found inside a keyword, and a
// 1.1x multiplier for curriculum chunks. Results sort descending with ties
// broken by insertion order, and scores are normalized by the top score so
// the best match is always 1.0. Results below minScore are dropped.
//
// When keyword scoring matches nothing, cosine similarity over the TF-IDF
// index ranks instead. An empty store returns an empty slice.
func (s *Store) Search(query string, topK int, minScore float64) []ScoredDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.docs) == 0 || topK <= 0 {
		return []ScoredDocument{}
	}

	results := s.keywordSearch(query, topK)
	if len(results) == 0 {
		results = s.semanticSearch(query, topK)
	}

	if minScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= minScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	return results
}

// keywordSearch scores every document against the query and returns the
// normalized topK. Caller holds the lock.
func (s *Store) keywordSearch(query string, topK int) []ScoredDocument {
	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	type indexedScore struct {
		idx   int
		score float64
	}
	scored := make([]indexedScore, 0, len(s.docs))

	for idx, doc := range s.docs {
		contentLower := strings.ToLower(doc.Content)
		score := 0.0

		if strings.Contains(contentLower, queryLower) {
			score += exactPhraseBonus
		}
		for _, word := range queryWords {
			if strings.Contains(contentLower, word) {
				score += wordMatchBonus
			}
		}

		for _, kw := range doc.Keywords() {
			kwLower := strings.ToLower(kw)
			if strings.Contains(kwLower, queryLower) || strings.Contains(queryLower, kwLower) {
				score += keywordMatchBonus
			}
			for _, word := range queryWords {
				if strings.Contains(kwLower, word) {
					score += partialKeywordBonus
				}
			}
		}

		if doc.SourceType == SourceCurriculum {
			score *= curriculumBoost
		}

		if score > 0 {
			scored = append(scored, indexedScore{idx: idx, score: score})
		}
	}

	if len(scored) == 0 {
		return nil
	}

	// Stable sort keeps insertion order for ties.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	top := scored[0].score
	results := make([]ScoredDocument, len(scored))
	for i, sc := range scored {
		results[i] = ScoredDocument{
			Document: s.docs[sc.idx],
			Score:    sc.score / top,
		}
	}
	return results
}

// semanticSearch ranks by cosine similarity over the TF-IDF index,
// rebuilding the index first if additions made it stale. Caller holds the
// lock.
func (s *Store) semanticSearch(query string, topK int) []ScoredDocument {
	s.rebuildIndexLocked()

	queryVec := s.vec.Vectorize(query)
	if len(queryVec) == 0 {
		return []ScoredDocument{}
	}

	type indexedScore struct {
		idx   int
		score float64
	}
	scored := make([]indexedScore, 0, len(s.docs))
	for idx := range s.docs {
		if sim := CosineSimilarity(queryVec, s.vecs[idx]); sim > 0 {
			scored = append(scored, indexedScore{idx: idx, score: sim})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	results := make([]ScoredDocument, len(scored))
	for i, sc := range scored {
		results[i] = ScoredDocument{Document: s.docs[sc.idx], Score: sc.score}
	}
	return results
}

// rebuildIndexLocked rebuilds the vocabulary and every cached document
// vector. Rebuilding invalidates all previously issued vectors, so the whole
// cache is recomputed in one pass. Caller holds the lock.
func (s *Store) rebuildIndexLocked() {
	if !s.dirty {
		return
	}

	texts := make([]string, len(s.docs))
	for i, doc := range s.docs {
		texts[i] = doc.Content
	}
	s.vec.BuildVocab(texts)

	s.vecs = make([]SparseVector, len(s.docs))
	for i, doc := range s.docs {
		s.vecs[i] = s.vec.Vectorize(doc.Content)
	}
	s.dirty = false

	s.logger.Debug("rebuilt tf-idf index",
		zap.Int("documents", len(s.docs)),
		zap.Int("vocab", s.vec.VocabSize()),
	)
}

// SearchByTopic returns curriculum documents whose topic or chapter contains
// the given name. grade 0 matches any grade.
func (s *Store) SearchByTopic(topicName string, grade int) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topicLower := strings.ToLower(topicName)
	var results []Document
	for _, doc := range s.docs {
		if doc.SourceType != SourceCurriculum {
			continue
		}
		if !strings.Contains(strings.ToLower(doc.Topic), topicLower) &&
			!strings.Contains(strings.ToLower(doc.Chapter), topicLower) {
			continue
		}
		if grade != 0 && doc.Grade != grade {
			continue
		}
		results = append(results, doc)
	}
	return results
}

// AnswerContext formats the top search results into a markdown context block
// with source attribution, suitable for feeding a generation prompt.
func (s *Store) AnswerContext(query string, topK int) string {
	results := s.Search(query, topK, 0)
	if len(results) == 0 {
		return "No relevant information found in knowledge base."
	}

	var b strings.Builder
	b.WriteString("## Relevant Information\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n### Source %d: %s\n", i+1, r.Document.Source)
		fmt.Fprintf(&b, "**Confidence:** %.1f%%\n\n", r.Score*100)
		content := []rune(r.Document.Content)
		if len(content) > 500 {
			b.WriteString(string(content[:500]))
			b.WriteString("...\n")
		} else {
			b.WriteString(string(content))
		}
	}
	b.WriteString("\n---\n")
	return b.String()
}

// chunkRunes splits text into fixed-size rune chunks with no overlap,
// dropping chunks that are entirely whitespace.
func chunkRunes(text string, size int) []string {
	if size <= 0 {
		size = 1
	}
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}
