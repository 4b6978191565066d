package rooms

import (
	"encoding/json"
	"strings"

	"github.com/google/cel-go/cel"
)

// Filter wraps a compiled CEL program evaluated per event on subscribe
// streams. When built from an empty expression, Match always returns true.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles a CEL expression over the event envelope. Exposed
// variables: kind, sender, room, id, sent_at_ms, now_ms and the parsed
// payload as json.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("sender", cel.StringType),
		cel.Variable("room", cel.StringType),
		cel.Variable("id", cel.IntType),
		cel.Variable("sent_at_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
		cel.Variable("json", cel.DynType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the expression against an event. Evaluation errors
// drop the event rather than failing the stream.
func (f Filter) Match(ev Event) bool {
	if !f.enabled {
		return true
	}
	var payload any
	_ = json.Unmarshal(ev.Payload, &payload)
	out, _, err := f.prog.Eval(map[string]any{
		"kind":       string(ev.Kind),
		"sender":     ev.SenderID,
		"room":       ev.RoomID,
		"id":         int64(ev.ID),
		"sent_at_ms": ev.SentAtMs,
		"now_ms":     NowMs(),
		"json":       payload,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
