package reranker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/reranker"
)

type fixedReranker struct {
	scores []float64
}

func (f *fixedReranker) Score(_ context.Context, _ string, candidates []string) ([]float64, error) {
	return f.scores, nil
}
func (f *fixedReranker) Name() string { return "fixed" }

func TestIdentityStrictlyDecreasing(t *testing.T) {
	id := &reranker.Identity{}
	scores, err := id.Score(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, []float64{3, 2, 1}, scores)
}

func TestIdentityEmptyCandidates(t *testing.T) {
	id := &reranker.Identity{}
	scores, err := id.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestBM25LengthPreservation(t *testing.T) {
	bm := reranker.NewBM25(nil)
	scores, err := bm.Score(context.Background(), "go routines", []string{
		"go routines are cheap",
		"python threads are heavy",
		"",
	})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Greater(t, scores[0], scores[1])
}

func TestBM25EmptyQueryIsAllZero(t *testing.T) {
	bm := reranker.NewBM25(nil)
	scores, err := bm.Score(context.Background(), "", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, scores)
}

func TestBM25EmptyCandidates(t *testing.T) {
	bm := reranker.NewBM25(nil)
	scores, err := bm.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

// TestRRFTieScenario: sub-rerankers scoring [1.0, 2.0, 4.0] and
// [2.0, 1.0, 4.0] must fuse so that the first two candidates tie and both
// trail the third.
func TestRRFTieScenario(t *testing.T) {
	subA := &fixedReranker{scores: []float64{1.0, 2.0, 4.0}}
	subB := &fixedReranker{scores: []float64{2.0, 1.0, 4.0}}

	rrf := reranker.NewRRF([]reranker.Reranker{subA, subB}, 60)
	scores, err := rrf.Score(context.Background(), "q", []string{"x", "y", "z"})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, scores[0], scores[1])
	assert.Less(t, scores[0], scores[2])
}

func TestRRFCommutative(t *testing.T) {
	subA := &fixedReranker{scores: []float64{1.0, 2.0, 4.0}}
	subB := &fixedReranker{scores: []float64{2.0, 1.0, 4.0}}

	forward := reranker.NewRRF([]reranker.Reranker{subA, subB}, 60)
	reversed := reranker.NewRRF([]reranker.Reranker{subB, subA}, 60)

	scoresA, err := forward.Score(context.Background(), "q", []string{"x", "y", "z"})
	require.NoError(t, err)
	scoresB, err := reversed.Score(context.Background(), "q", []string{"x", "y", "z"})
	require.NoError(t, err)
	assert.Equal(t, scoresA, scoresB)
}

func TestRRFEmptyCandidates(t *testing.T) {
	rrf := reranker.NewRRF(nil, 60)
	scores, err := rrf.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRRFNoSubRerankersLengthPreserved(t *testing.T) {
	rrf := reranker.NewRRF(nil, 60)
	scores, err := rrf.Score(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, scores)
}
