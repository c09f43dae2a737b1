package reranker

import "context"

// IdentityName identifies the identity reranker in the registry.
const IdentityName = "identity"

func init() {
	Register(IdentityName, func(_ map[string]any, _ func(string) (Reranker, error)) (Reranker, error) {
		return &Identity{}, nil
	})
}

// Identity is a no-op baseline: it preserves input order by assigning a
// strictly decreasing score to each candidate (N, N-1, ..., 1), so earlier
// candidates always outrank later ones under any tie-break rule that sorts
// descending by score.
type Identity struct{}

// Score returns N, N-1, ..., 1 for N candidates.
func (i *Identity) Score(_ context.Context, _ string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}
	scores := make([]float64, len(candidates))
	n := len(candidates)
	for i := range candidates {
		scores[i] = float64(n - i)
	}
	return scores, nil
}

// Name returns the reranker's registry name.
func (i *Identity) Name() string { return IdentityName }
