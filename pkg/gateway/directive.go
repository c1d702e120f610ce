package gateway

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"mercator-hq/railguard/pkg/actions"
)

// Text directives let models without tool support request actions:
//
//	{"action": "get_weather", "arguments": {"location": "Paris"}}
//	ACTION: get_weather({"location": "Paris"})
//
// The JSON form may be fenced in a ```json block. Only registered names are
// honoured; anything else stays in the text.
var (
	fencedBlock   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	directiveLine = regexp.MustCompile(`(?m)^[ \t]*ACTION:[ \t]*([A-Za-z_][A-Za-z0-9_]*)\((.*)\)[ \t]*$`)
)

type directive struct {
	Action    string         `json:"action"`
	Arguments map[string]any `json:"arguments"`
}

// parseDirectives extracts action requests from completion text and returns
// them with the text that remains once the directives are removed.
func parseDirectives(text string, known map[string]bool) ([]actions.Call, string) {
	if len(known) == 0 || text == "" {
		return nil, text
	}

	var calls []actions.Call
	add := func(name string, args map[string]any) {
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, actions.Call{ID: newCallID(), Name: name, Arguments: args})
	}

	rest := fencedBlock.ReplaceAllStringFunc(text, func(block string) string {
		m := fencedBlock.FindStringSubmatch(block)
		if d, ok := decodeDirective(m[1], known); ok {
			add(d.Action, d.Arguments)
			return ""
		}
		return block
	})

	if trimmed := strings.TrimSpace(rest); len(calls) == 0 && strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		if d, ok := decodeDirective(trimmed, known); ok {
			add(d.Action, d.Arguments)
			rest = ""
		}
	}

	rest = directiveLine.ReplaceAllStringFunc(rest, func(line string) string {
		m := directiveLine.FindStringSubmatch(line)
		name, raw := m[1], strings.TrimSpace(m[2])
		if !known[name] {
			return line
		}
		var args map[string]any
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return line
			}
		}
		add(name, args)
		return ""
	})

	return calls, strings.TrimSpace(rest)
}

func decodeDirective(raw string, known map[string]bool) (directive, bool) {
	var d directive
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return directive{}, false
	}
	return d, known[d.Action]
}

func newCallID() string {
	return "call_" + uuid.NewString()
}
