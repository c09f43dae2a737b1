package reranker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kart-io/agentmem/pkg/infra/pool"
)

// RRFName identifies the reciprocal-rank-fusion hybrid reranker in the
// registry.
const RRFName = "rrf_hybrid"

// DefaultRRFConstant is the "k" smoothing constant from the original RRF
// paper.
const DefaultRRFConstant = 60.0

func init() {
	Register(RRFName, func(config map[string]any, resolve func(string) (Reranker, error)) (Reranker, error) {
		ids, _ := config["sub_rerankers"].([]string)
		subs := make([]Reranker, 0, len(ids))
		for _, id := range ids {
			sub, err := resolve(id)
			if err != nil {
				return nil, fmt.Errorf("rrf_hybrid: resolve sub-reranker %q: %w", id, err)
			}
			subs = append(subs, sub)
		}
		k := DefaultRRFConstant
		if v, ok := config["k"].(float64); ok && v > 0 {
			k = v
		}
		return NewRRF(subs, k), nil
	})
}

// RRF combines a configured list of sub-rerankers by reciprocal-rank fusion:
// each sub-reranker's scores are converted to a rank (1 = best), then
// 1/(k+rank) is summed across sub-rerankers. The result is commutative over
// sub-reranker order and monotone in any single component's rank
// improvement, and preserves input order (the output is indexed by
// candidate, not re-sorted).
type RRF struct {
	subs []Reranker
	k    float64
}

// NewRRF builds an RRF hybrid reranker over subs. k defaults to
// DefaultRRFConstant if <= 0.
func NewRRF(subs []Reranker, k float64) *RRF {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRF{subs: subs, k: k}
}

// Score implements Reranker. Sub-rerankers are dispatched on the shared
// reranker worker pool and awaited together; a failing sub-reranker fails
// the whole call, since a silently dropped component would change the
// fusion's weighting without the caller knowing.
func (r *RRF) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}
	if len(r.subs) == 0 {
		return make([]float64, len(candidates)), nil
	}

	subScores := make([][]float64, len(r.subs))
	errs := make([]error, len(r.subs))
	var wg sync.WaitGroup

	for i, sub := range r.subs {
		wg.Add(1)
		i, sub := i, sub
		task := func() {
			defer wg.Done()
			scores, err := sub.Score(ctx, query, candidates)
			subScores[i] = scores
			errs[i] = err
		}
		if p, err := pool.GetByType(pool.RerankerPool); err == nil && p != nil {
			if submitErr := p.Submit(task); submitErr != nil {
				task()
			}
		} else {
			task()
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("rrf_hybrid: sub-reranker %q: %w", r.subs[i].Name(), err)
		}
	}

	fused := make([]float64, len(candidates))
	for _, scores := range subScores {
		ranks := ranksOf(scores)
		for i, rank := range ranks {
			fused[i] += 1.0 / (r.k + float64(rank))
		}
	}
	return fused, nil
}

// ranksOf converts a score slice into 1-based descending ranks: the highest
// score gets rank 1. Equal scores take consecutive ranks in input order
// (stable sort), so the same inputs always rank the same way.
func ranksOf(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	ranks := make([]int, len(scores))
	for rank, idx := range order {
		ranks[idx] = rank + 1
	}
	return ranks
}

// Name returns the reranker's registry name.
func (r *RRF) Name() string { return RRFName }
