package bundler

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"path/filepath"

	"github.com/gh-nvat/gitops-policypack/src/pkg/models"
	"github.com/gh-nvat/gitops-policypack/src/pkg/output"
	"github.com/gh-nvat/gitops-policypack/src/pkg/script"
	"github.com/gh-nvat/gitops-policypack/src/pkg/template"
	"github.com/gh-nvat/gitops-policypack/src/pkg/trace"
	"golang.org/x/tools/imports"
)

// GoBundler merges a Go policy package and its local dependencies into a
// single policy script.
type GoBundler struct{}

var _ Bundler = (*GoBundler)(nil)

func NewGoBundler() *GoBundler {
	return &GoBundler{}
}

func (b *GoBundler) Bundle(ctx context.Context, opts Options) (*models.BundleResult, error) {
	_, span := trace.StartSpan(ctx, "Bundle.Go")
	defer span.End()

	logger.WithField("entry", opts.Entry).Info("Bundling go policy module...")
	src, err := Merge(ctx, opts.Entry)
	if err != nil {
		return nil, err
	}

	s, err := script.Load(filepath.Base(opts.OutputPath), src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompilation, err)
	}
	exports := s.Exports()
	if len(exports) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoExports, opts.Entry)
	}

	if err := output.WriteFile(opts.OutputPath, src); err != nil {
		return nil, fmt.Errorf("failed to write bundle: %w", err)
	}
	logger.WithField("path", opts.OutputPath).WithField("exports", exports).Info("Bundled go policy module")
	return newResult(EngineGo, opts.OutputPath, src, exports), nil
}

// Merge resolves the package in dir with the go command and merges it, and
// every package it imports that the policy runtime does not provide, into one
// source file. Package level names of inlined packages are prefixed with their
// package name, comments are dropped and imports deduplicated. Packages and
// files are taken in path order, so the result only depends on the sources.
func Merge(ctx context.Context, dir string) ([]byte, error) {
	graph, err := loadGraph(ctx, dir)
	if err != nil {
		return nil, err
	}
	m, err := newMerger(graph)
	if err != nil {
		return nil, err
	}
	merged, err := m.merge()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(template.BundleSourceHeaderComment + "\n\n")
	if err := format.Node(&buf, graph.fset, merged); err != nil {
		return nil, fmt.Errorf("%w: print merged source: %v", ErrCompilation, err)
	}

	out, err := imports.Process("bundle.go", buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: format merged source: %v", ErrCompilation, err)
	}
	return out, nil
}
