// Package retriever provides offline document indexing and search over
// curriculum topics, uploaded PDFs and raw text.
package retriever

// SourceType classifies where a document chunk came from.
type SourceType string

const (
	// SourceCurriculum marks chunks generated from curriculum topics.
	SourceCurriculum SourceType = "curriculum"
	// SourcePDF marks chunks extracted from uploaded PDF files.
	SourcePDF SourceType = "pdf"
	// SourceText marks chunks added from raw text.
	SourceText SourceType = "text"
)

// Document is a searchable document chunk. Documents are created at index
// time and immutable thereafter; they are owned by the Store that holds them.
type Document struct {
	// Content is the chunk text.
	Content string `json:"content"`

	// Source names where the chunk came from, e.g. "Physics Notes (Page 3)".
	Source string `json:"source"`

	// SourceType is one of curriculum, pdf, text.
	SourceType SourceType `json:"source_type"`

	// Topic is the curriculum topic name, when applicable.
	Topic string `json:"topic,omitempty"`

	// Chapter is the curriculum chapter name, when applicable.
	Chapter string `json:"chapter,omitempty"`

	// Grade is the curriculum grade level, when applicable.
	Grade int `json:"grade,omitempty"`

	// Metadata carries additional key-value pairs. The "keywords" key, when
	// present, holds a []string consulted by the search scorer.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Keywords returns the metadata keyword list, or nil when absent.
func (d Document) Keywords() []string {
	if d.Metadata == nil {
		return nil
	}
	switch v := d.Metadata["keywords"].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ScoredDocument pairs a document with its search score.
type ScoredDocument struct {
	Document Document
	Score    float64
}
