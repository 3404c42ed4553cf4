package runner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/gh-nvat/gitops-policypack/src/pkg/apis/policy/v1beta1"
	"github.com/gh-nvat/gitops-policypack/src/pkg/bundler"
	"github.com/gh-nvat/gitops-policypack/src/pkg/models"
	"github.com/gh-nvat/gitops-policypack/src/pkg/packager"
	"github.com/gh-nvat/gitops-policypack/src/pkg/script"
	"github.com/gh-nvat/gitops-policypack/src/pkg/trace"
)

var (
	// ErrBundleMismatch indicates a manifest whose payload is not the given bundle
	ErrBundleMismatch = errors.New("manifest payload does not match bundle")
	// ErrUnknownFunction indicates a JsPolicy referencing a function the bundle does not export
	ErrUnknownFunction = errors.New("policy references a function the bundle does not export")
)

type VerifyOptions struct {
	ManifestPath       string // rendered JsPolicyBundle manifest (required)
	BundlePath         string // bundle to compare the payload with (optional)
	PolicyManifestPath string // rendered JsPolicy manifest whose function must be exported (optional)
	Engine             string // go bundles are loaded and their exports listed
}

// Verify reads the bundle back out of a rendered manifest the way the cluster
// side does: decode base64, gunzip, and for go bundles load the script.
func Verify(ctx context.Context, opts VerifyOptions) (*models.VerifyResult, error) {
	_, span := trace.StartSpan(ctx, "Verify")
	defer span.End()
	logger.WithField("manifest", opts.ManifestPath).Info("Verify: starting...")

	manifest, err := os.ReadFile(opts.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", packager.ErrMissingInput, opts.ManifestPath, err)
	}
	bundleManifest, err := v1beta1.ParseJsPolicyBundle(manifest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.ManifestPath, err)
	}
	bundle, err := packager.Decompress(bundleManifest.Spec.Bundle)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.ManifestPath, err)
	}

	sum := sha256.Sum256(bundle)
	result := &models.VerifyResult{
		Manifest:       opts.ManifestPath,
		Name:           bundleManifest.Name,
		CompressedSize: len(bundleManifest.Spec.Bundle),
		BundleSize:     len(bundle),
		BundleSHA256:   hex.EncodeToString(sum[:]),
	}

	if opts.BundlePath != "" {
		expected, err := os.ReadFile(opts.BundlePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", packager.ErrMissingInput, opts.BundlePath, err)
		}
		matches := bytes.Equal(expected, bundle)
		result.MatchesBundle = &matches
		if !matches {
			return result, fmt.Errorf("%w: %s", ErrBundleMismatch, opts.BundlePath)
		}
	}

	if opts.Engine == bundler.EngineGo || opts.Engine == "" {
		s, err := script.Load(filepath.Base(opts.ManifestPath), bundle)
		if err != nil {
			return result, err
		}
		result.Exports = s.Exports()
		if len(result.Exports) == 0 {
			return result, bundler.ErrNoExports
		}
	}

	if opts.PolicyManifestPath != "" {
		data, err := os.ReadFile(opts.PolicyManifestPath)
		if err != nil {
			return result, fmt.Errorf("%w: %s: %v", packager.ErrMissingInput, opts.PolicyManifestPath, err)
		}
		jsPolicy, err := v1beta1.ParseJsPolicy(data)
		if err != nil {
			return result, fmt.Errorf("%s: %w", opts.PolicyManifestPath, err)
		}
		result.Function = jsPolicy.Spec.Function
		if result.Function != "" && result.Exports != nil && !slices.Contains(result.Exports, result.Function) {
			return result, fmt.Errorf("%w: %s", ErrUnknownFunction, result.Function)
		}
	}

	logger.WithField("name", result.Name).WithField("exports", result.Exports).Info("Verify: done.")
	return result, nil
}
