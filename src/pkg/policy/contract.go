package policy

import (
	"context"
	"errors"
	"fmt"
)

// ErrContractViolation is returned when a policy fails to produce a result,
// e.g. it panicked on input it did not expect.
var ErrContractViolation = errors.New("policy violated the evaluation contract")

// Func is the shape every policy evaluation function satisfies. It receives the
// admission request as a document tree and returns the violations it found, in
// scan order. An empty result means no objection.
type Func func(request map[string]interface{}) []string

// Evaluator evaluates one named policy against a request document.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, request map[string]interface{}) ([]string, error)
}

// FuncEvaluator adapts a Func to the Evaluator interface.
type FuncEvaluator struct {
	name string
	fn   Func
}

var _ Evaluator = (*FuncEvaluator)(nil)

func NewFuncEvaluator(name string, fn Func) *FuncEvaluator {
	return &FuncEvaluator{name: name, fn: fn}
}

func (e *FuncEvaluator) Name() string {
	return e.name
}

// Evaluate calls the wrapped function. A panic is reported as ErrContractViolation
// instead of unwinding into the caller.
func (e *FuncEvaluator) Evaluate(_ context.Context, request map[string]interface{}) (violations []string, err error) {
	if e.fn == nil {
		return nil, fmt.Errorf("policy %s: %w: no function", e.name, ErrContractViolation)
	}
	defer func() {
		if r := recover(); r != nil {
			violations = nil
			err = fmt.Errorf("policy %s: %w: %v", e.name, ErrContractViolation, r)
		}
	}()

	violations = e.fn(request)
	if violations == nil {
		violations = []string{}
	}
	return violations, nil
}
