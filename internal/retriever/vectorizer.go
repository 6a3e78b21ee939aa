package retriever

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// SparseVector is a term-index -> weight map. Vectors are ephemeral: any
// vocabulary rebuild invalidates every previously produced vector.
type SparseVector map[int]float64

// Vectorizer builds a sparse TF-IDF representation over a document corpus.
//
// BuildVocab assigns each distinct term a stable integer index in sorted
// term order and caches per-term inverse document frequency. Vectorize then
// weights raw term frequency (normalized by token count) by the cached IDF.
type Vectorizer struct {
	vocab map[string]int
	idf   []float64
}

// NewVectorizer returns an empty vectorizer. BuildVocab must be called
// before Vectorize produces non-empty output.
func NewVectorizer() *Vectorizer {
	return &Vectorizer{vocab: make(map[string]int)}
}

// BuildVocab tokenizes every document, counts document frequency per term
// and computes IDF as ln(N / (1+df)). Previously issued vectors are invalid
// after this call.
func (v *Vectorizer) BuildVocab(documents []string) {
	docFreq := make(map[string]int)
	for _, doc := range documents {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(doc) {
			seen[tok] = struct{}{}
		}
		for tok := range seen {
			docFreq[tok]++
		}
	}

	terms := make([]string, 0, len(docFreq))
	for term := range docFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	total := float64(len(documents))
	v.vocab = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.vocab[term] = i
		v.idf[i] = math.Log(total / float64(1+docFreq[term]))
	}
}

// VocabSize returns the number of distinct terms in the vocabulary.
func (v *Vectorizer) VocabSize() int {
	return len(v.vocab)
}

// Vectorize converts text into a sparse TF-IDF vector over the current
// vocabulary. Unknown terms are dropped; only non-zero weights are returned.
func (v *Vectorizer) Vectorize(text string) SparseVector {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return SparseVector{}
	}

	counts := make(map[int]float64)
	for _, tok := range tokens {
		if idx, ok := v.vocab[tok]; ok {
			counts[idx]++
		}
	}

	vec := make(SparseVector, len(counts))
	docLength := float64(len(tokens))
	for idx, tf := range counts {
		if w := (tf / docLength) * v.idf[idx]; w != 0 {
			vec[idx] = w
		}
	}
	return vec
}

// CosineSimilarity computes the cosine of two sparse vectors. Either vector
// being empty (or zero-magnitude) yields 0.
func CosineSimilarity(a, b SparseVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for idx, w := range a {
		normA += w * w
		if other, ok := b[idx]; ok {
			dot += w * other
		}
	}
	for _, w := range b {
		normB += w * w
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tokenize lowercases, strips punctuation and drops tokens of 2 characters
// or fewer.
func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	fields := strings.Fields(cleaned)
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
