package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gh-nvat/gitops-policypack/src/pkg/apis/policy/v1beta1"
	"github.com/gh-nvat/gitops-policypack/src/pkg/models"
	"github.com/gh-nvat/gitops-policypack/src/pkg/packager"
	"github.com/gh-nvat/gitops-policypack/src/pkg/policy"
	"github.com/gh-nvat/gitops-policypack/src/pkg/script"
	"github.com/gh-nvat/gitops-policypack/src/pkg/trace"
	admissionv1 "k8s.io/api/admission/v1"
	"sigs.k8s.io/yaml"
)

type EvaluateOptions struct {
	RequestPath  string   // AdmissionReview, AdmissionRequest or bare object, YAML or JSON (required)
	BundlePath   string   // go bundle file
	ManifestPath string   // rendered JsPolicyBundle manifest, used instead of BundlePath
	Functions    []string // exported functions to evaluate, all exports when empty
	RegoFiles    []string // additional Rego modules whose deny set is evaluated
}

// Evaluate runs the selected policies of a bundle, and any Rego modules,
// against one admission request.
func Evaluate(ctx context.Context, opts EvaluateOptions) (*models.EvaluateReport, error) {
	ctx, span := trace.StartSpan(ctx, "Evaluate")
	defer span.End()
	logger.WithField("request", opts.RequestPath).Info("Evaluate: starting...")

	registry := policy.NewRegistry()
	if opts.BundlePath != "" || opts.ManifestPath != "" {
		s, err := loadBundle(opts)
		if err != nil {
			return nil, err
		}
		if err := registerFunctions(registry, s, opts.Functions); err != nil {
			return nil, err
		}
	}
	for _, path := range opts.RegoFiles {
		module, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", packager.ErrMissingInput, path, err)
		}
		e, err := policy.NewRegoEvaluator(ctx, path, string(module))
		if err != nil {
			return nil, err
		}
		if err := registry.Register(e); err != nil {
			return nil, err
		}
	}
	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("nothing to evaluate: provide a bundle, a bundle manifest or rego modules")
	}

	request, err := LoadRequest(opts.RequestPath)
	if err != nil {
		return nil, err
	}

	report := &models.EvaluateReport{
		Request: opts.RequestPath,
		Results: registry.EvaluateAll(ctx, request),
	}
	logger.WithField("violations", report.Violations()).Info("Evaluate: done.")
	return report, nil
}

func loadBundle(opts EvaluateOptions) (*script.Script, error) {
	if opts.ManifestPath != "" {
		data, err := os.ReadFile(opts.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", packager.ErrMissingInput, opts.ManifestPath, err)
		}
		manifest, err := v1beta1.ParseJsPolicyBundle(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opts.ManifestPath, err)
		}
		bundle, err := packager.Decompress(manifest.Spec.Bundle)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opts.ManifestPath, err)
		}
		return script.Load(filepath.Base(opts.ManifestPath), bundle)
	}

	bundle, err := os.ReadFile(opts.BundlePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", packager.ErrMissingInput, opts.BundlePath, err)
	}
	return script.Load(filepath.Base(opts.BundlePath), bundle)
}

func registerFunctions(registry *policy.Registry, s *script.Script, functions []string) error {
	if len(functions) == 0 {
		return s.Register(registry)
	}
	for _, name := range functions {
		fn, err := s.Lookup(name)
		if err != nil {
			return err
		}
		if err := registry.RegisterFunc(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// LoadRequest reads the request document from an AdmissionReview, an
// AdmissionRequest, or a bare Kubernetes object, which is treated as the
// object of a CREATE request.
func LoadRequest(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", packager.ErrMissingInput, path, err)
	}

	probe := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode request %s: %w", path, err)
	}

	if kind, _ := probe["kind"].(string); kind == "AdmissionReview" {
		review := &admissionv1.AdmissionReview{}
		if err := yaml.Unmarshal(data, review); err != nil {
			return nil, fmt.Errorf("failed to decode admission review %s: %w", path, err)
		}
		if review.Request == nil {
			return nil, fmt.Errorf("admission review %s carries no request", path)
		}
		return policy.RequestDocument(review.Request)
	}

	if _, ok := probe["apiVersion"].(string); ok {
		return map[string]interface{}{
			"operation": string(admissionv1.Create),
			"object":    probe,
		}, nil
	}

	req := &admissionv1.AdmissionRequest{}
	if err := yaml.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("failed to decode admission request %s: %w", path, err)
	}
	return policy.RequestDocument(req)
}
