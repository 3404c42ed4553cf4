// Package bundler compiles a policy module into a single self-contained
// script. A bundle is only written once the build succeeded, so a broken
// policy never produces an artifact.
package bundler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gh-nvat/gitops-policypack/src/pkg/models"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "bundler")

var (
	// ErrCompilation indicates malformed or unresolvable policy source
	ErrCompilation = errors.New("policy compilation failed")
	// ErrNoExports indicates a bundle that exposes no policy function
	ErrNoExports = errors.New("bundle exports no policy function")
)

const (
	EngineGo      = "go"
	EngineWebpack = "webpack"
)

// Options describes one bundling run. Paths are absolute or relative to the
// working directory.
type Options struct {
	ProjectDir string
	Entry      string
	OutputPath string
	Webpack    models.WebpackConfig
}

// Bundler turns a policy module into a bundle file.
type Bundler interface {
	Bundle(ctx context.Context, opts Options) (*models.BundleResult, error)
}

// New returns the bundler for engine.
func New(engine string) (Bundler, error) {
	switch engine {
	case EngineGo, "":
		return NewGoBundler(), nil
	case EngineWebpack:
		return NewWebpackBundler(), nil
	default:
		return nil, fmt.Errorf("unknown bundle engine %q: supported values are %s, %s", engine, EngineGo, EngineWebpack)
	}
}

func newResult(engine, path string, bundle []byte, exports []string) *models.BundleResult {
	sum := sha256.Sum256(bundle)
	return &models.BundleResult{
		Engine:  engine,
		Path:    path,
		Size:    len(bundle),
		SHA256:  hex.EncodeToString(sum[:]),
		Exports: exports,
	}
}
