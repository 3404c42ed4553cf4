package bundler

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strings"

	"github.com/gh-nvat/gitops-policypack/src/pkg/script"
	"golang.org/x/tools/go/packages"
)

const (
	discoverMode = packages.NeedName | packages.NeedImports | packages.NeedModule
	loadMode     = packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles | packages.NeedImports |
		packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedModule
)

// packageGraph is an entry package together with every package that has to be
// inlined into its bundle. Packages the policy runtime provides are not part of
// the graph; they stay imports.
type packageGraph struct {
	fset    *token.FileSet
	entry   *packages.Package
	inlined []*packages.Package // sorted by import path
}

// loadGraph resolves the import graph of the package in dir through the go
// command and type checks every package that has to be inlined.
func loadGraph(ctx context.Context, dir string) (*packageGraph, error) {
	cfg := &packages.Config{Context: ctx, Dir: dir, Mode: discoverMode, Logf: logger.Debugf}
	roots, err := packages.Load(cfg, ".")
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrCompilation, dir, err)
	}
	if err := packageErrors(roots); err != nil {
		return nil, err
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("%w: %s: expected one package, found %d", ErrCompilation, dir, len(roots))
	}
	entryPath := roots[0].PkgPath

	seen := map[string]bool{entryPath: true}
	var inline []string
	for pending := roots; len(pending) > 0; {
		var next []string
		for _, pkg := range pending {
			for importPath := range pkg.Imports {
				if seen[importPath] {
					continue
				}
				seen[importPath] = true
				if !script.IsImportable(importPath) {
					next = append(next, importPath)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		sort.Strings(next)

		pending, err = packages.Load(cfg, next...)
		if err != nil {
			return nil, fmt.Errorf("%w: load %s: %v", ErrCompilation, strings.Join(next, ", "), err)
		}
		if err := packageErrors(pending); err != nil {
			return nil, err
		}
		for _, pkg := range pending {
			if pkg.Module == nil {
				return nil, fmt.Errorf("%w: standard library package %q is not available to policies", ErrCompilation, pkg.PkgPath)
			}
			if pkg.Name == "main" {
				return nil, fmt.Errorf("%w: %s: cannot inline a main package", ErrCompilation, pkg.PkgPath)
			}
		}
		inline = append(inline, next...)
	}
	sort.Strings(inline)
	logger.WithField("entry", entryPath).WithField("inlined", inline).Debug("Resolved policy package graph")

	cfg.Mode = loadMode
	cfg.Fset = token.NewFileSet()
	cfg.ParseFile = func(fset *token.FileSet, filename string, src []byte) (*ast.File, error) {
		return parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	}
	loaded, err := packages.Load(cfg, append([]string{entryPath}, inline...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrCompilation, dir, err)
	}
	if err := packageErrors(loaded); err != nil {
		return nil, err
	}

	byPath := make(map[string]*packages.Package, len(loaded))
	for _, pkg := range loaded {
		byPath[pkg.PkgPath] = pkg
	}
	graph := &packageGraph{fset: cfg.Fset, entry: byPath[entryPath]}
	if graph.entry == nil {
		return nil, fmt.Errorf("%w: %s: package %s not loaded", ErrCompilation, dir, entryPath)
	}
	for _, importPath := range inline {
		pkg, ok := byPath[importPath]
		if !ok {
			return nil, fmt.Errorf("%w: package %s not loaded", ErrCompilation, importPath)
		}
		graph.inlined = append(graph.inlined, pkg)
	}
	return graph, nil
}

// packageErrors folds the load, parse and type errors of pkgs into one
// ErrCompilation.
func packageErrors(pkgs []*packages.Package) error {
	var msgs []string
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			msgs = append(msgs, e.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCompilation, strings.Join(msgs, "; "))
}
