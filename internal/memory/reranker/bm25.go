package reranker

import (
	"context"
	"math"
	"strings"
	"unicode"
)

// BM25Name identifies the BM25 reranker in the registry.
const BM25Name = "bm25"

func init() {
	Register(BM25Name, func(config map[string]any, _ func(string) (Reranker, error)) (Reranker, error) {
		cfg := DefaultBM25Config()
		if v, ok := config["k1"].(float64); ok && v > 0 {
			cfg.K1 = v
		}
		if v, ok := config["b"].(float64); ok && v >= 0 {
			cfg.B = v
		}
		return NewBM25(cfg), nil
	})
}

// Tokenizer splits a document into index terms. The default lowercases and
// splits on non-word runes.
type Tokenizer func(text string) []string

// BM25Config configures the BM25 reranker.
type BM25Config struct {
	// K1 controls term-frequency saturation. Higher values let repeated terms
	// keep contributing; the classic default is 1.5.
	K1 float64
	// B controls document-length normalization, from 0 (none) to 1 (full).
	B float64
	// Tokenizer splits text into terms. DefaultTokenizer if nil.
	Tokenizer Tokenizer
}

// DefaultBM25Config returns the textbook BM25 parameters.
func DefaultBM25Config() *BM25Config {
	return &BM25Config{K1: 1.5, B: 0.75, Tokenizer: DefaultTokenizer}
}

// DefaultTokenizer lowercases text and splits on runs of non-letter,
// non-digit runes.
func DefaultTokenizer(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// BM25 scores candidates by the classic Okapi BM25 formula over a tokenized
// index built fresh from the candidate set on every call, since the corpus
// is the query-time candidate set rather than a persistent collection.
type BM25 struct {
	cfg *BM25Config
}

// NewBM25 builds a BM25 reranker. A nil config uses DefaultBM25Config.
func NewBM25(cfg *BM25Config) *BM25 {
	if cfg == nil {
		cfg = DefaultBM25Config()
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = DefaultTokenizer
	}
	return &BM25{cfg: cfg}
}

// Score implements Reranker.
func (r *BM25) Score(_ context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}

	docTerms := make([][]string, len(candidates))
	docFreq := make([]map[string]int, len(candidates))
	termDocCount := make(map[string]int)
	var totalLen float64

	for i, c := range candidates {
		terms := r.cfg.Tokenizer(c)
		docTerms[i] = terms
		totalLen += float64(len(terms))

		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		docFreq[i] = freq
		for t := range freq {
			termDocCount[t]++
		}
	}

	scores := make([]float64, len(candidates))
	queryTerms := r.cfg.Tokenizer(query)
	if len(queryTerms) == 0 {
		return scores, nil
	}

	n := float64(len(candidates))
	avgLen := totalLen / n

	for _, term := range queryTerms {
		df := float64(termDocCount[term])
		if df == 0 {
			continue
		}
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)

		for i := range candidates {
			tf := float64(docFreq[i][term])
			if tf == 0 {
				continue
			}
			docLen := float64(len(docTerms[i]))
			denom := tf + r.cfg.K1*(1-r.cfg.B+r.cfg.B*docLen/avgLen)
			scores[i] += idf * (tf * (r.cfg.K1 + 1) / denom)
		}
	}
	return scores, nil
}

// Name returns the reranker's registry name.
func (r *BM25) Name() string { return BM25Name }
