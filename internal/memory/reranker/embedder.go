package reranker

import (
	"context"
	"math"

	"github.com/kart-io/agentmem/internal/memory/embed"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// EmbedderSimilarityName identifies the embedder-similarity reranker in the
// registry.
const EmbedderSimilarityName = "embedder_similarity"

func init() {
	Register(EmbedderSimilarityName, func(config map[string]any, _ func(string) (Reranker, error)) (Reranker, error) {
		provider, _ := config["provider"].(embed.Provider)
		if provider == nil {
			return nil, memerr.ErrInvalidConfig.WithMessage("embedder_similarity: provider is required")
		}
		metric := vectorgraph.MetricCosine
		if v, ok := config["metric"].(vectorgraph.SimilarityMetric); ok && v != "" {
			metric = v
		} else if v, ok := config["metric"].(string); ok && v != "" {
			metric = vectorgraph.SimilarityMetric(v)
		}
		return NewEmbedderSimilarity(provider, metric), nil
	})
}

// EmbedderSimilarity embeds the query and every candidate, then scores each
// pair under the embedder's declared similarity metric. Distance metrics
// (Euclidean, Manhattan) are negated so that, invariantly across every
// reranker in this package, a larger score means more relevant.
type EmbedderSimilarity struct {
	provider embed.Provider
	metric   vectorgraph.SimilarityMetric
}

// NewEmbedderSimilarity builds an EmbedderSimilarity reranker.
func NewEmbedderSimilarity(provider embed.Provider, metric vectorgraph.SimilarityMetric) *EmbedderSimilarity {
	return &EmbedderSimilarity{provider: provider, metric: metric}
}

// Score implements Reranker.
func (e *EmbedderSimilarity) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}

	queryVec, err := e.provider.EmbedSingle(ctx, query)
	if err != nil {
		return nil, memerr.FromExternal(err)
	}
	candidateVecs, err := e.provider.Embed(ctx, candidates)
	if err != nil {
		return nil, memerr.FromExternal(err)
	}

	scores := make([]float64, len(candidates))
	for i, vec := range candidateVecs {
		scores[i] = similarity(e.metric, queryVec, vec)
	}
	return scores, nil
}

// Name returns the reranker's registry name.
func (e *EmbedderSimilarity) Name() string { return EmbedderSimilarityName }

// similarity scores a under metric, normalized so that larger is always more
// relevant: cosine and dot product are returned as-is, Euclidean and
// Manhattan distances are negated.
func similarity(metric vectorgraph.SimilarityMetric, a, b []float32) float64 {
	switch metric {
	case vectorgraph.MetricDot:
		return dot(a, b)
	case vectorgraph.MetricEuclidean:
		return -euclidean(a, b)
	case vectorgraph.MetricManhattan:
		return -manhattan(a, b)
	default:
		return cosine(a, b)
	}
}

func dot(a, b []float32) float64 {
	n := minLen(a, b)
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosine(a, b []float32) float64 {
	n := minLen(a, b)
	var dotP, normA, normB float64
	for i := 0; i < n; i++ {
		dotP += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotP / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclidean(a, b []float32) float64 {
	n := minLen(a, b)
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func manhattan(a, b []float32) float64 {
	n := minLen(a, b)
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

func minLen(a, b []float32) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}
