package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/evbus/internal/events"
)

// Result is the tagged outcome of evaluating a predicate against an event.
type Result int

const (
	// Accepted means the predicate evaluated to true (or there is no predicate).
	Accepted Result = iota
	// Rejected means the predicate evaluated to false.
	Rejected
	// EvaluationError means evaluation failed; the event is dropped.
	EvaluationError
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case EvaluationError:
		return "evaluation_error"
	default:
		return "unknown"
	}
}

// DefaultCostLimit bounds the runtime cost of a single evaluation.
const DefaultCostLimit uint64 = 100_000

// ErrEmptyExpression is returned by Compile for blank input.
var ErrEmptyExpression = errors.New("filter: empty expression")

// Predicate is a compiled, immutable filter expression. It is safe for
// concurrent use; every evaluation gets its own activation.
type Predicate struct {
	text string
	prog cel.Program
}

type options struct {
	costLimit uint64
}

// Option configures Compile.
type Option func(*options)

// WithCostLimit overrides DefaultCostLimit. Zero disables the limit.
func WithCostLimit(limit uint64) Option {
	return func(o *options) { o.costLimit = limit }
}

// Compile parses and type-checks a CEL expression. The expression sees the
// event as the dynamic map variable `event` and the current time as `now_ms`.
//
//	event.type == "CheckResult" && event.host.startsWith("web")
func Compile(text string, opts ...Option) (*Predicate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyExpression
	}
	o := options{costLimit: DefaultCostLimit}
	for _, opt := range opts {
		opt(&o)
	}
	env, err := cel.NewEnv(
		cel.Variable("event", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(text)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("filter: %w", iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, fmt.Errorf("filter: %w", iss2.Err())
	}
	out := checked.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter: expression must evaluate to bool, got %s", out)
	}
	progOpts := []cel.ProgramOption{}
	if o.costLimit > 0 {
		progOpts = append(progOpts, cel.CostLimit(o.costLimit))
	}
	prog, err := env.Program(checked, progOpts...)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return &Predicate{text: text, prog: prog}, nil
}

// String returns the source text.
func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	return p.text
}

// Evaluate runs p against ev. A nil predicate accepts everything. The error
// is non-nil only for EvaluationError.
func (p *Predicate) Evaluate(ev *events.Event) (Result, error) {
	if p == nil {
		return Accepted, nil
	}
	out, _, err := p.prog.Eval(map[string]any{
		"event":  ev.Native(),
		"now_ms": time.Now().UnixMilli(),
	})
	if err != nil {
		return EvaluationError, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return EvaluationError, fmt.Errorf("filter: expression returned %T, want bool", out.Value())
	}
	if b {
		return Accepted, nil
	}
	return Rejected, nil
}
