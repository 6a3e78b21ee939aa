package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor returns canned pages or a canned error.
type fakeExtractor struct {
	pages []PageText
	err   error
}

func (f *fakeExtractor) ExtractPages(_ context.Context, _ string) ([]PageText, error) {
	return f.pages, f.err
}

func newTestStore(t *testing.T, extractor PDFExtractor) *Store {
	t.Helper()
	s, err := NewStore(Config{}, extractor, nil)
	require.NoError(t, err)
	return s
}

func TestSearchEmptyStore(t *testing.T) {
	s := newTestStore(t, nil)

	results := s.Search("anything at all", 5, 0)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestSearchCatMat(t *testing.T) {
	s := newTestStore(t, nil)
	s.Add(Document{Content: "The cat sat on the mat", Source: "pets", SourceType: SourceText})
	s.Add(Document{Content: "Dogs bark loudly", Source: "pets", SourceType: SourceText})

	results := s.Search("cat mat", 1, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "The cat sat on the mat", results[0].Document.Content)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestSearchTopScoreNormalizedToOne(t *testing.T) {
	s := newTestStore(t, nil)
	s.Add(Document{Content: "photosynthesis converts light energy", SourceType: SourceText})
	s.Add(Document{Content: "energy transfer in food chains", SourceType: SourceText})

	results := s.Search("photosynthesis energy", 2, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, 1.0, results[0].Score)
	for _, r := range results[1:] {
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	s := newTestStore(t, nil)
	s.Add(Document{Content: "gravity pulls objects down", Source: "first", SourceType: SourceText})
	s.Add(Document{Content: "gravity pulls objects down", Source: "second", SourceType: SourceText})

	results := s.Search("gravity", 2, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Document.Source)
	assert.Equal(t, "second", results[1].Document.Source)
}

func TestSearchCurriculumBoost(t *testing.T) {
	s := newTestStore(t, nil)
	s.Add(Document{Content: "quadratic equations explained", SourceType: SourceText, Source: "notes"})
	s.Add(Document{Content: "quadratic equations explained", SourceType: SourceCurriculum, Source: "curriculum"})

	results := s.Search("quadratic equations", 2, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "curriculum", results[0].Document.Source)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Less(t, results[1].Score, 1.0)
}

func TestSearchMetadataKeywords(t *testing.T) {
	s := newTestStore(t, nil)
	s.Add(Document{
		Content:    "Chapter overview",
		SourceType: SourceCurriculum,
		Source:     "with-keywords",
		Metadata:   map[string]interface{}{"keywords": []string{"algebra", "equations"}},
	})
	s.Add(Document{
		Content:    "Chapter overview",
		SourceType: SourceCurriculum,
		Source:     "without-keywords",
	})

	results := s.Search("algebra", 2, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "with-keywords", results[0].Document.Source)
}

func TestSearchMinScoreFilters(t *testing.T) {
	s := newTestStore(t, nil)
	s.Add(Document{Content: "the water cycle includes evaporation and condensation", SourceType: SourceText})
	s.Add(Document{Content: "condensation", SourceType: SourceText})

	s.Add(Document{Content: "water is everywhere", SourceType: SourceText})

	all := s.Search("water cycle evaporation", 5, 0)
	strict := s.Search("water cycle evaporation", 5, 0.99)
	assert.Greater(t, len(all), len(strict))
	for _, r := range strict {
		assert.GreaterOrEqual(t, r.Score, 0.99)
	}
}

func TestSearchSemanticFallback(t *testing.T) {
	s := newTestStore(t, nil)
	s.Add(Document{Content: "mitochondria produce cellular energy", SourceType: SourceText, Source: "bio"})
	s.Add(Document{Content: "tectonic plates shift continents", SourceType: SourceText, Source: "geo"})
	s.Add(Document{Content: "rivers deposit fertile soil", SourceType: SourceText, Source: "agri"})

	// "energy!!" never appears verbatim, so keyword scoring finds nothing;
	// the tokenizer strips punctuation and the TF-IDF fallback still ranks
	// the biology chunk first.
	results := s.Search("energy!!", 3, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "bio", results[0].Document.Source)

	// A query sharing no vocabulary at all stays empty.
	assert.Empty(t, s.Search("zzz unmatched token", 3, 0))
}

func TestAddTextChunking(t *testing.T) {
	s := newTestStore(t, nil)
	text := strings.Repeat("a", 1200)
	s.AddText(text, "notes")

	// 500-char chunks: 500 + 500 + 200.
	assert.Equal(t, 3, s.Len())
}

func TestAddTextBlankIgnored(t *testing.T) {
	s := newTestStore(t, nil)
	s.AddText("   \n\t  ", "blank")
	assert.Zero(t, s.Len())
}

func TestAddPDFChunksPages(t *testing.T) {
	extractor := &fakeExtractor{pages: []PageText{
		{PageNumber: 1, Text: strings.Repeat("x", 1500)},
		{PageNumber: 2, Text: ""},
		{PageNumber: 3, Text: "short page"},
	}}
	s := newTestStore(t, extractor)

	err := s.AddPDF(context.Background(), "/tmp/fake.pdf", "Physics Notes")
	require.NoError(t, err)

	// Page 1: 1000 + 500 chars. Page 2 skipped. Page 3: one chunk.
	assert.Equal(t, 3, s.Len())

	results := s.Search("short page", 1, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "Physics Notes (Page 3)", results[0].Document.Source)
	assert.Equal(t, SourcePDF, results[0].Document.SourceType)
	assert.Equal(t, 3, results[0].Document.Metadata["page"])
}

func TestAddPDFErrorNoRollback(t *testing.T) {
	s := newTestStore(t, &fakeExtractor{err: errors.New("corrupt xref table")})

	s.AddText("pre-existing document content", "existing")
	before := s.Len()

	err := s.AddPDF(context.Background(), "/tmp/bad.pdf", "Broken")
	require.Error(t, err)
	assert.Equal(t, before, s.Len())
}

func TestSearchAddedDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	s.AddText("The Indus Valley civilization flourished along the river", "history")

	results := s.Search("Indus Valley civilization", 3, 0)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Document.Content, "Indus Valley")
	assert.Equal(t, 1.0, results[0].Score)
}

func TestSearchByTopic(t *testing.T) {
	s := newTestStore(t, nil)
	s.Add(Document{Content: "c1", SourceType: SourceCurriculum, Topic: "Linear Equations", Chapter: "Algebra", Grade: 9})
	s.Add(Document{Content: "c2", SourceType: SourceCurriculum, Topic: "Photosynthesis", Chapter: "Biology", Grade: 9})
	s.Add(Document{Content: "c3", SourceType: SourceCurriculum, Topic: "Linear Motion", Chapter: "Physics", Grade: 10})
	s.Add(Document{Content: "t1", SourceType: SourceText, Topic: "Linear Equations"})

	assert.Len(t, s.SearchByTopic("linear", 0), 2)
	assert.Len(t, s.SearchByTopic("linear", 9), 1)
	assert.Len(t, s.SearchByTopic("algebra", 0), 1)
	assert.Empty(t, s.SearchByTopic("chemistry", 0))
}

func TestAnswerContext(t *testing.T) {
	s := newTestStore(t, nil)
	s.AddText("Newton's first law states that objects at rest stay at rest", "physics")

	out := s.AnswerContext("Newton first law", 3)
	assert.Contains(t, out, "## Relevant Information")
	assert.Contains(t, out, "### Source 1: physics")
	assert.Contains(t, out, "Newton's first law")

	empty := s.AnswerContext("completely unrelated zzz", 3)
	assert.Equal(t, "No relevant information found in knowledge base.", empty)
}

func TestReset(t *testing.T) {
	s := newTestStore(t, nil)
	s.AddText("some content here", "src")
	require.NotZero(t, s.Len())

	s.Reset()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Search("content", 3, 0))
}
