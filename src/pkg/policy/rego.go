package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

// RegoDenyRule is the rule a Rego policy defines to report violations.
const RegoDenyRule = "deny"

// RegoEvaluator evaluates the deny set of a Rego module. The request document
// is the input; each element of the set is one violation. Sets carry no scan
// order, so violations come back in the order OPA serializes them (sorted).
type RegoEvaluator struct {
	name     string
	query    string
	prepared rego.PreparedEvalQuery
}

var _ Evaluator = (*RegoEvaluator)(nil)

// NewRegoEvaluator parses and prepares module. The policy is named after the
// module's package path, e.g. "podsecurity.privileged".
func NewRegoEvaluator(ctx context.Context, filename, module string) (*RegoEvaluator, error) {
	parsed, err := ast.ParseModule(filename, module)
	if err != nil {
		return nil, fmt.Errorf("parse rego module %q: %w", filename, err)
	}
	if parsed == nil {
		return nil, fmt.Errorf("parse rego module %q: empty module", filename)
	}

	pkgPath := parsed.Package.Path.String() // e.g. data.podsecurity
	query := pkgPath + "." + RegoDenyRule

	r := rego.New(
		rego.Query(query),
		rego.ParsedModule(parsed),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego module %q: %w", filename, err)
	}

	return &RegoEvaluator{
		name:     strings.TrimPrefix(pkgPath, "data."),
		query:    query,
		prepared: prepared,
	}, nil
}

func (e *RegoEvaluator) Name() string {
	return e.name
}

func (e *RegoEvaluator) Evaluate(ctx context.Context, request map[string]interface{}) ([]string, error) {
	results, err := e.prepared.Eval(ctx, rego.EvalInput(request))
	if err != nil {
		return nil, fmt.Errorf("policy %s: opa eval: %w", e.name, err)
	}

	violations := []string{}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// deny is undefined: nothing to report
		return violations, nil
	}

	switch value := results[0].Expressions[0].Value.(type) {
	case []interface{}:
		for _, v := range value {
			if s, ok := v.(string); ok {
				violations = append(violations, s)
				continue
			}
			violations = append(violations, fmt.Sprint(v))
		}
	default:
		return nil, fmt.Errorf("policy %s: %s must be a set of strings, got %T", e.name, e.query, value)
	}
	return violations, nil
}
