package deriver

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/internal/memory/model"
	memerr "github.com/kart-io/agentmem/pkg/errors"
	"github.com/kart-io/agentmem/pkg/id"
)

var errMissingModel = memerr.ErrInvalidConfig.WithMessage("llm_summary: model is required")

// LLMSummaryName identifies the language-model summary deriver in the
// registry.
const LLMSummaryName = "llm_summary"

func init() {
	Register(LLMSummaryName, func(config map[string]any) (Deriver, error) {
		model, _ := config["model"].(llm.ChatProvider)
		if model == nil {
			return nil, errMissingModel
		}
		template := DefaultSummaryTemplate
		if v, ok := config["template"].(string); ok && v != "" {
			template = v
		}
		return NewLLMSummary(model, template), nil
	})
}

// DefaultSummaryTemplate is the prompt template used when none is configured.
// "%s" is substituted with the cluster's newline-joined episode contents.
const DefaultSummaryTemplate = "Summarize the following conversation excerpt in one or two sentences:\n\n%s"

// LLMSummary prompts a language model with the cluster's joined contents and
// turns its single response into one derivative. It fails soft per the
// ingest pipeline's contract: an LLM error is logged and produces zero
// derivatives rather than blocking ingestion of the episode itself.
type LLMSummary struct {
	model    llm.ChatProvider
	template string
}

// NewLLMSummary builds an LLMSummary deriver. template must contain exactly
// one "%s" verb for the joined cluster content.
func NewLLMSummary(model llm.ChatProvider, template string) *LLMSummary {
	if template == "" {
		template = DefaultSummaryTemplate
	}
	return &LLMSummary{model: model, template: template}
}

// Derive implements Deriver.
func (d *LLMSummary) Derive(ctx context.Context, cluster *model.EpisodeCluster) ([]*model.Derivative, error) {
	if len(cluster.Episodes) == 0 {
		return nil, nil
	}

	parts := make([]string, len(cluster.Episodes))
	for i, ep := range cluster.Episodes {
		parts[i] = ep.Content
	}
	prompt := strings.Replace(d.template, "%s", strings.Join(parts, "\n"), 1)

	resp, err := d.model.Generate(ctx, prompt, "")
	if err != nil {
		logger.Warnw("llm summary deriver failed, emitting no derivatives", "cluster_id", cluster.ID, "error", err.Error())
		return nil, nil
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, nil
	}

	return []*model.Derivative{{
		ID:                   id.NewUUID(),
		DerivativeType:       LLMSummaryName,
		ContentType:          model.ContentTypeString,
		Content:              content,
		Timestamp:            latestTimestamp(cluster),
		FilterableProperties: cluster.FilterableProperties.Clone(),
		UserMetadata:         cluster.UserMetadata,
		ClusterID:            cluster.ID,
	}}, nil
}

// Name returns the deriver's registry name.
func (d *LLMSummary) Name() string { return LLMSummaryName }

func latestTimestamp(cluster *model.EpisodeCluster) time.Time {
	var latest time.Time
	for _, ep := range cluster.Episodes {
		if ep.Timestamp.After(latest) {
			latest = ep.Timestamp
		}
	}
	return latest
}
