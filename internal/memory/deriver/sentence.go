package deriver

import (
	"context"
	"regexp"
	"strings"

	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/pkg/id"
)

// SentenceSplitName identifies the sentence-split deriver in the registry.
const SentenceSplitName = "sentence_split"

func init() {
	Register(SentenceSplitName, func(_ map[string]any) (Deriver, error) {
		return &SentenceSplit{}, nil
	})
}

// sentenceBoundary matches a sentence terminator (., ?, !) followed by
// whitespace, or a bare newline — the two boundary shapes conversational
// text actually carries.
var sentenceBoundary = regexp.MustCompile(`([.?!])\s+|\n+`)

// splitSentences is a language-agnostic, punctuation-driven segmenter: it
// does not attempt abbreviation or locale-specific disambiguation, trading
// precision on edge cases (e.g. "Mr. Smith") for predictable, dependency-free
// behavior across every content language the store might see.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	last := 0
	matches := sentenceBoundary.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		end := m[1]
		if m[2] >= 0 {
			// Terminator captured: keep it attached to the sentence.
			end = m[3]
		} else {
			end = m[0]
		}
		if sentence := strings.TrimSpace(text[last:end]); sentence != "" {
			sentences = append(sentences, sentence)
		}
		last = m[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// SentenceSplit tokenizes each episode's content into sentences, emitting one
// derivative per sentence that inherits its source episode's filterable
// properties.
type SentenceSplit struct{}

// Derive implements Deriver.
func (d *SentenceSplit) Derive(_ context.Context, cluster *model.EpisodeCluster) ([]*model.Derivative, error) {
	var out []*model.Derivative
	for _, ep := range cluster.Episodes {
		for _, sentence := range splitSentences(ep.Content) {
			out = append(out, &model.Derivative{
				ID:                   id.NewUUID(),
				DerivativeType:       SentenceSplitName,
				ContentType:          model.ContentTypeString,
				Content:              sentence,
				Timestamp:            ep.Timestamp,
				FilterableProperties: ep.FilterableProperties.Clone(),
				UserMetadata:         ep.UserMetadata,
				ClusterID:            cluster.ID,
			})
		}
	}
	return out, nil
}

// Name returns the deriver's registry name.
func (d *SentenceSplit) Name() string { return SentenceSplitName }
