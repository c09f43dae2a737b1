package mutator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/agentmem/internal/memory/model"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// MetadataTemplatedName identifies the metadata-templated mutator in the
// registry.
const MetadataTemplatedName = "metadata_templated"

func init() {
	Register(MetadataTemplatedName, func(config map[string]any) (Mutator, error) {
		template, _ := config["template"].(string)
		if template == "" {
			return nil, memerr.ErrInvalidConfig.WithMessage("metadata_templated: template is required")
		}
		return NewMetadataTemplated(template), nil
	})
}

// MetadataTemplated substitutes "$name" placeholders in a template with
// values drawn from the derivative's content, timestamp, and filterable
// properties. Placeholders with no matching value are left literal rather
// than silently dropped, so a misconfigured template is easy to spot.
//
// It preserves the derivative's own filterable_properties (unlike the
// language-model mutator, which narrows them to the cluster's shared set) —
// this asymmetry is intentional: a templated rewrite only touches content,
// so its scope should stay as narrow as the source derivative's.
type MetadataTemplated struct {
	template string
}

// NewMetadataTemplated builds a MetadataTemplated mutator.
func NewMetadataTemplated(template string) *MetadataTemplated {
	return &MetadataTemplated{template: template}
}

// Mutate implements Mutator.
func (m *MetadataTemplated) Mutate(_ context.Context, derivative *model.Derivative, _ *model.EpisodeCluster) ([]*model.Derivative, error) {
	values := map[string]string{
		"content":   derivative.Content,
		"timestamp": derivative.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}
	for k, v := range derivative.FilterableProperties {
		values[k] = fmt.Sprintf("%v", v)
	}

	rewritten := *derivative
	rewritten.Content = substitutePlaceholders(m.template, values)
	rewritten.DerivativeType = MetadataTemplatedName
	return []*model.Derivative{&rewritten}, nil
}

// Name returns the mutator's registry name.
func (m *MetadataTemplated) Name() string { return MetadataTemplatedName }

// substitutePlaceholders replaces every "$name" occurrence present in values;
// unknown placeholders are left untouched.
func substitutePlaceholders(template string, values map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		if template[i] != '$' {
			b.WriteByte(template[i])
			i++
			continue
		}
		j := i + 1
		for j < len(template) && isPlaceholderRune(template[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte(template[i])
			i++
			continue
		}
		name := template[i+1 : j]
		if v, ok := values[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(template[i:j])
		}
		i = j
	}
	return b.String()
}

func isPlaceholderRune(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
