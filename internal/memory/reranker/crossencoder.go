package reranker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kart-io/agentmem/internal/memory/llm"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// CrossEncoderName identifies the cross-encoder reranker in the registry.
const CrossEncoderName = "cross_encoder"

func init() {
	Register(CrossEncoderName, func(config map[string]any, _ func(string) (Reranker, error)) (Reranker, error) {
		model, _ := config["model"].(llm.ChatProvider)
		if model == nil {
			return nil, memerr.ErrInvalidConfig.WithMessage("cross_encoder: model is required")
		}
		return NewCrossEncoder(model), nil
	})
}

const crossEncoderPrompt = `Rate how relevant the document is to the query on a scale from 0.0 (irrelevant) to 1.0 (perfectly relevant). Respond with only the number, nothing else.

Query: %s
Document: %s

Relevance score:`

// CrossEncoder delegates scoring to a chat-capable language model used as a
// pairwise sequence scorer, since this codebase has no dedicated
// cross-encoder model binding. Each candidate is scored independently;
// candidates that fail to parse as a score fall back to 0.
type CrossEncoder struct {
	model llm.ChatProvider
}

// NewCrossEncoder builds a CrossEncoder reranker over model.
func NewCrossEncoder(model llm.ChatProvider) *CrossEncoder {
	return &CrossEncoder{model: model}
}

// Score implements Reranker. A failure calling the model for any candidate
// fails the entire call, since a partial cross-encoder pass would silently
// misrank the result.
func (c *CrossEncoder) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}

	scores := make([]float64, len(candidates))
	for i, candidate := range candidates {
		prompt := fmt.Sprintf(crossEncoderPrompt, query, candidate)
		resp, err := c.model.Generate(ctx, prompt, "")
		if err != nil {
			return nil, memerr.FromExternal(err)
		}
		scores[i] = parseScore(resp.Content)
	}
	return scores, nil
}

func parseScore(text string) float64 {
	text = strings.TrimSpace(text)
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v
	}
	// Tolerate a leading number followed by extra model chatter.
	fields := strings.Fields(text)
	if len(fields) > 0 {
		if v, err := strconv.ParseFloat(strings.TrimRight(fields[0], ".,"), 64); err == nil {
			return v
		}
	}
	return 0
}

// Name returns the reranker's registry name.
func (c *CrossEncoder) Name() string { return CrossEncoderName }
