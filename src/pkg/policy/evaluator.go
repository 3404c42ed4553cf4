package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/gh-nvat/gitops-policypack/src/pkg/models"

	log "github.com/sirupsen/logrus"
)

var logger *log.Entry = log.New().WithFields(log.Fields{
	"package": "policy",
})

// Registry resolves policies by name. Bundled scripts, native functions and
// Rego modules all register here, so callers never depend on how a policy
// was authored.
type Registry struct {
	evaluators map[string]Evaluator
}

func NewRegistry() *Registry {
	return &Registry{
		evaluators: make(map[string]Evaluator),
	}
}

// Register adds an evaluator. Names must be unique.
func (r *Registry) Register(e Evaluator) error {
	if e == nil || e.Name() == "" {
		return fmt.Errorf("policy must have a name")
	}
	if _, ok := r.evaluators[e.Name()]; ok {
		return fmt.Errorf("policy %s: already registered", e.Name())
	}
	r.evaluators[e.Name()] = e
	return nil
}

// RegisterFunc registers fn under name.
func (r *Registry) RegisterFunc(name string, fn Func) error {
	return r.Register(NewFuncEvaluator(name, fn))
}

func (r *Registry) Lookup(name string) (Evaluator, bool) {
	e, ok := r.evaluators[name]
	return e, ok
}

// Names returns the registered policy names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.evaluators))
	for name := range r.evaluators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs the named policy against request.
func (r *Registry) Evaluate(ctx context.Context, name string, request map[string]interface{}) (models.PolicyEvalResult, error) {
	e, ok := r.evaluators[name]
	if !ok {
		return models.PolicyEvalResult{}, fmt.Errorf("policy %s: not registered", name)
	}
	return evaluateOne(ctx, e, request), nil
}

// EvaluateAll runs every registered policy against request, in name order.
// A policy that errors is reported with status "error" and does not stop the others.
func (r *Registry) EvaluateAll(ctx context.Context, request map[string]interface{}) []models.PolicyEvalResult {
	logger.Info("EvaluateAll: starting...")
	results := make([]models.PolicyEvalResult, 0, len(r.evaluators))
	for _, name := range r.Names() {
		results = append(results, evaluateOne(ctx, r.evaluators[name], request))
	}
	logger.Infof("EvaluateAll: done, evaluated %d policies.", len(results))
	return results
}

func evaluateOne(ctx context.Context, e Evaluator, request map[string]interface{}) models.PolicyEvalResult {
	violations, err := e.Evaluate(ctx, request)
	if err != nil {
		logger.WithField("policy", e.Name()).WithField("error", err).Warn("Policy evaluation failed")
		return models.PolicyEvalResult{
			Policy:       e.Name(),
			Status:       models.PolicyEvalStatusError,
			ErrorMessage: err.Error(),
		}
	}
	logger.WithField("policy", e.Name()).WithField("violations", violations).Debug("Evaluated policy")
	if len(violations) == 0 {
		return models.PolicyEvalResult{Policy: e.Name(), Status: models.PolicyEvalStatusPass}
	}
	return models.PolicyEvalResult{
		Policy:       e.Name(),
		Status:       models.PolicyEvalStatusFail,
		FailMessages: violations,
	}
}
