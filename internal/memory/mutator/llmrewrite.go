package mutator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/internal/memory/model"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// LLMRewriteName identifies the language-model rewrite mutator in the
// registry.
const LLMRewriteName = "llm_rewrite"

func init() {
	Register(LLMRewriteName, func(config map[string]any) (Mutator, error) {
		model, _ := config["model"].(llm.ChatProvider)
		if model == nil {
			return nil, memerr.ErrInvalidConfig.WithMessage("llm_rewrite: model is required")
		}
		preserve, _ := config["preserve_properties"].(bool)
		return NewLLMRewrite(model, preserve), nil
	})
}

const defaultRewritePrompt = "Rewrite the following derivative to be clearer and more self-contained, using the surrounding conversation for context. Respond with only the rewritten text.\n\nConversation:\n%s\n\nDerivative:\n%s"

// LLMRewrite prompts a language model with the original derivative and its
// cluster's contents, taking the response as the new content.
//
// By default filterable_properties narrow to the cluster's shared set, so a
// rewritten derivative carries only cluster-wide scope labels instead of the
// narrower per-episode labels it may have inherited — a rewrite mixes in
// context from the whole cluster, so its scope should widen to match. Set
// preserveProperties to keep the original derivative's properties instead.
type LLMRewrite struct {
	model              llm.ChatProvider
	preserveProperties bool
}

// NewLLMRewrite builds an LLMRewrite mutator.
func NewLLMRewrite(model llm.ChatProvider, preserveProperties bool) *LLMRewrite {
	return &LLMRewrite{model: model, preserveProperties: preserveProperties}
}

// Mutate implements Mutator.
func (m *LLMRewrite) Mutate(ctx context.Context, derivative *model.Derivative, cluster *model.EpisodeCluster) ([]*model.Derivative, error) {
	parts := make([]string, len(cluster.Episodes))
	for i, ep := range cluster.Episodes {
		parts[i] = ep.Content
	}
	prompt := fmt.Sprintf(defaultRewritePrompt, strings.Join(parts, "\n"), derivative.Content)

	resp, err := m.model.Generate(ctx, prompt, "")
	if err != nil {
		return nil, memerr.FromExternal(err)
	}

	rewritten := *derivative
	rewritten.Content = strings.TrimSpace(resp.Content)
	rewritten.DerivativeType = LLMRewriteName
	if !m.preserveProperties {
		rewritten.FilterableProperties = cluster.FilterableProperties.Clone()
	}
	return []*model.Derivative{&rewritten}, nil
}

// Name returns the mutator's registry name.
func (m *LLMRewrite) Name() string { return LLMRewriteName }
