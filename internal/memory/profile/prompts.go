package profile

import (
	"strings"

	memerr "github.com/kart-io/agentmem/pkg/errors"
	"github.com/kart-io/agentmem/pkg/jsonutil"
)

// DefaultUpdatePrompt is the extraction prompt template used when none is
// configured. "%s" is substituted with the newline-joined uningested
// history entries for one user.
const DefaultUpdatePrompt = `You maintain a structured profile of facts about a user from their messages.
Given the following recent messages, respond with a JSON object whose values
are commands of the shape {"command": "add"|"update"|"delete", "tag": string,
"feature": string, "value": string, "author": string (optional)}. Only emit
commands for facts that are new, changed, or retracted.

Messages:
%s`

// DefaultConsolidationPrompt is the consolidation prompt template. "%s" is
// substituted with the newline-joined current values for one
// (tag, feature) group.
const DefaultConsolidationPrompt = `The following values were all recorded for the same user profile feature.
Merge them into the smallest set of non-redundant values that preserves all
distinct information. Respond with a JSON array of strings.

Values:
%s`

// ParseCommands decodes an extraction response into its set of Commands.
// The response's top-level shape is a JSON object whose values — not keys —
// are Command bodies; object keys are caller-facing labels only and are
// ignored. An unrecognized "command" string fails with InvalidArgument.
func ParseCommands(raw string) ([]Command, error) {
	raw = extractJSON(raw)
	var obj map[string]Command
	if err := jsonutil.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, memerr.ErrInvalidArgument.WithCause(err)
	}
	out := make([]Command, 0, len(obj))
	for _, cmd := range obj {
		switch cmd.Command {
		case CommandAdd, CommandUpdate, CommandDelete:
		default:
			return nil, memerr.ErrInvalidArgument.WithMessagef("unknown profile command %q", cmd.Command)
		}
		out = append(out, cmd)
	}
	return out, nil
}

// ParseConsolidation decodes a consolidation response into its reduced set
// of values.
func ParseConsolidation(raw string) ([]string, error) {
	raw = extractJSON(raw)
	var values []string
	if err := jsonutil.Unmarshal([]byte(raw), &values); err != nil {
		return nil, memerr.ErrInvalidArgument.WithCause(err)
	}
	return values, nil
}

// extractJSON trims code-fence wrapping ("```json ... ```") some language
// models wrap structured replies in, so ParseCommands/ParseConsolidation
// only ever see the bare JSON body.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
