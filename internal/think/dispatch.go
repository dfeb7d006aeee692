package think

import (
	"regexp"
	"strings"

	"github.com/mwhitaker/conclave/pkg/models"
)

// dispatchPattern matches [DISPATCH:agent] markers in model output.
var dispatchPattern = regexp.MustCompile(`\[DISPATCH:([a-zA-Z_]+)\]`)

// Dispatch is one delegation request extracted from model output.
type Dispatch struct {
	// Agent is the agent the work is delegated to.
	Agent models.AgentType
	// Text is the task text following the marker, up to the next
	// marker or the end of the output.
	Text string
}

// ParseDispatch returns the first valid dispatch in the text. Markers
// naming an unknown agent are skipped. The second return is false when
// no valid marker exists.
func ParseDispatch(text string) (Dispatch, bool) {
	all := ParseDispatches(text)
	if len(all) == 0 {
		return Dispatch{}, false
	}
	return all[0], true
}

// ParseDispatches returns every valid dispatch in the text, in order.
func ParseDispatches(text string) []Dispatch {
	matches := dispatchPattern.FindAllStringSubmatchIndex(text, -1)
	var out []Dispatch
	for i, m := range matches {
		agent := models.AgentType(strings.ToLower(text[m[2]:m[3]]))
		if !agent.Valid() {
			continue
		}

		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])

		out = append(out, Dispatch{Agent: agent, Text: body})
	}
	return out
}

// StripDispatches removes all dispatch markers from the text, keeping
// the surrounding prose.
func StripDispatches(text string) string {
	return strings.TrimSpace(dispatchPattern.ReplaceAllString(text, ""))
}
