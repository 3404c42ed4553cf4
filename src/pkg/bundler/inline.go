package bundler

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gh-nvat/gitops-policypack/src/pkg/script"
	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/packages"
)

// merger folds the packages of a graph into one file. Package level names of
// inlined packages get a per package prefix, runtime imports get one name for
// the whole bundle.
type merger struct {
	graph    *packageGraph
	prefixes map[string]string // inlined import path -> identifier prefix
	aliases  map[string]string // runtime import path -> name in the bundle
	blank    map[string]bool   // runtime import paths imported for side effects only
	taken    map[string]bool   // every identifier a new import name must not shadow
	decls    []ast.Decl
}

func newMerger(graph *packageGraph) (*merger, error) {
	m := &merger{
		graph:    graph,
		prefixes: map[string]string{},
		aliases:  map[string]string{},
		blank:    map[string]bool{},
		taken:    map[string]bool{},
	}

	counts := map[string]int{}
	for _, pkg := range graph.inlined {
		base := lowerFirst(pkg.Name)
		counts[base]++
		prefix := base + "_"
		if counts[base] > 1 {
			prefix = fmt.Sprintf("%s%d_", base, counts[base])
		}
		m.prefixes[pkg.PkgPath] = prefix
	}

	for _, pkg := range m.packages() {
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				if id, ok := n.(*ast.Ident); ok {
					if !isPackageName(pkg.TypesInfo, id) {
						m.taken[id.Name] = true
					}
				}
				return true
			})
		}
	}

	owners := map[string]string{}
	for _, pkg := range m.packages() {
		prefix := m.prefixes[pkg.PkgPath]
		for _, name := range pkg.Types.Scope().Names() {
			merged := prefix + name
			if other, ok := owners[merged]; ok {
				return nil, fmt.Errorf("%w: %s declared by both %s and %s", ErrCompilation, merged, other, pkg.PkgPath)
			}
			if prefix != "" && m.taken[merged] {
				return nil, fmt.Errorf("%w: %s.%s clashes with identifier %s", ErrCompilation, pkg.PkgPath, name, merged)
			}
			owners[merged] = pkg.PkgPath
		}
	}
	for merged := range owners {
		m.taken[merged] = true
	}
	return m, nil
}

// packages returns the inlined packages followed by the entry package.
func (m *merger) packages() []*packages.Package {
	return append(append([]*packages.Package{}, m.graph.inlined...), m.graph.entry)
}

// merge rewrites every file of the graph and returns the combined file.
func (m *merger) merge() (*ast.File, error) {
	for _, pkg := range m.packages() {
		files := append([]*ast.File{}, pkg.Syntax...)
		sort.Slice(files, func(i, j int) bool {
			return m.graph.fset.Position(files[i].Package).Filename < m.graph.fset.Position(files[j].Package).Filename
		})
		for _, file := range files {
			if err := m.addFile(pkg, file); err != nil {
				return nil, err
			}
		}
	}
	return m.file(), nil
}

func (m *merger) addFile(pkg *packages.Package, file *ast.File) error {
	filename := m.graph.fset.Position(file.Package).Filename
	for _, spec := range file.Imports {
		importPath, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return fmt.Errorf("%w: %s: bad import %s", ErrCompilation, filename, spec.Path.Value)
		}
		if _, ok := m.prefixes[importPath]; ok {
			continue
		}
		switch {
		case spec.Name != nil && spec.Name.Name == ".":
			return fmt.Errorf("%w: %s: dot import of %q is not supported", ErrCompilation, filename, importPath)
		case spec.Name != nil && spec.Name.Name == "_":
			m.blank[importPath] = true
		default:
			m.alias(importPath)
		}
	}

	if err := m.checkEmbedded(pkg, file); err != nil {
		return err
	}

	prefix, inlined := m.prefixes[pkg.PkgPath]
	info := pkg.TypesInfo

	// Qualified references into inlined packages become plain identifiers.
	astutil.Apply(file, func(c *astutil.Cursor) bool {
		sel, ok := c.Node().(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if target, ok := m.inlinedPackage(info, sel.X); ok {
			c.Replace(&ast.Ident{NamePos: sel.Sel.NamePos, Name: m.prefixes[target] + sel.Sel.Name})
			return false
		}
		return true
	}, nil)

	ast.Inspect(file, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		if pn, ok := info.Uses[id].(*types.PkgName); ok {
			if alias, ok := m.aliases[pn.Imported().Path()]; ok {
				id.Name = alias
			}
			return true
		}
		if inlined && isPackageLevel(pkg, objectOf(info, id)) {
			id.Name = prefix + id.Name
		}
		return true
	})

	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.IMPORT {
			continue
		}
		m.decls = append(m.decls, decl)
	}
	return nil
}

// alias picks the bundle wide name of a runtime import: its package name, or
// the first numbered variant no identifier of the bundle uses yet.
func (m *merger) alias(importPath string) string {
	if alias, ok := m.aliases[importPath]; ok {
		return alias
	}
	name, ok := script.PackageName(importPath)
	if !ok {
		name = importPath[strings.LastIndex(importPath, "/")+1:]
	}
	alias := name
	for i := 2; m.taken[alias]; i++ {
		alias = fmt.Sprintf("%s%d", name, i)
	}
	m.taken[alias] = true
	m.aliases[importPath] = alias
	return alias
}

// inlinedPackage reports the import path of the inlined package x refers to.
func (m *merger) inlinedPackage(info *types.Info, x ast.Expr) (string, bool) {
	id, ok := x.(*ast.Ident)
	if !ok {
		return "", false
	}
	pn, ok := info.Uses[id].(*types.PkgName)
	if !ok {
		return "", false
	}
	importPath := pn.Imported().Path()
	_, ok = m.prefixes[importPath]
	return importPath, ok
}

// checkEmbedded rejects struct fields embedding a type of an inlined package:
// renaming the type would rename the promoted field too.
func (m *merger) checkEmbedded(pkg *packages.Package, file *ast.File) error {
	var err error
	ast.Inspect(file, func(n ast.Node) bool {
		st, ok := n.(*ast.StructType)
		if !ok || err != nil {
			return err == nil
		}
		for _, field := range st.Fields.List {
			if len(field.Names) > 0 {
				continue
			}
			typ := field.Type
			if star, ok := typ.(*ast.StarExpr); ok {
				typ = star.X
			}
			if index, ok := typ.(*ast.IndexExpr); ok {
				typ = index.X
			}
			if index, ok := typ.(*ast.IndexListExpr); ok {
				typ = index.X
			}
			embedsInlined := false
			switch t := typ.(type) {
			case *ast.SelectorExpr:
				_, embedsInlined = m.inlinedPackage(pkg.TypesInfo, t.X)
			case *ast.Ident:
				_, isInlined := m.prefixes[pkg.PkgPath]
				embedsInlined = isInlined && isPackageLevel(pkg, pkg.TypesInfo.Uses[t])
			}
			if embedsInlined {
				err = fmt.Errorf("%w: %s: embedding a type of an inlined package is not supported", ErrCompilation, m.graph.fset.Position(field.Pos()))
				return false
			}
		}
		return true
	})
	return err
}

// file assembles the merged file: one import block, then every declaration.
func (m *merger) file() *ast.File {
	merged := &ast.File{Name: ast.NewIdent(m.graph.entry.Name)}

	var specs []ast.Spec
	paths := make([]string, 0, len(m.aliases))
	for importPath := range m.aliases {
		paths = append(paths, importPath)
	}
	sort.Strings(paths)
	for _, importPath := range paths {
		spec := &ast.ImportSpec{Path: &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(importPath)}}
		if name, _ := script.PackageName(importPath); name != m.aliases[importPath] {
			spec.Name = ast.NewIdent(m.aliases[importPath])
		}
		specs = append(specs, spec)
	}
	blank := make([]string, 0, len(m.blank))
	for importPath := range m.blank {
		if _, ok := m.aliases[importPath]; !ok {
			blank = append(blank, importPath)
		}
	}
	sort.Strings(blank)
	for _, importPath := range blank {
		specs = append(specs, &ast.ImportSpec{
			Name: ast.NewIdent("_"),
			Path: &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(importPath)},
		})
	}

	if len(specs) > 0 {
		merged.Decls = append(merged.Decls, &ast.GenDecl{Tok: token.IMPORT, Lparen: 1, Specs: specs})
	}
	merged.Decls = append(merged.Decls, m.decls...)
	return merged
}

func isPackageName(info *types.Info, id *ast.Ident) bool {
	_, ok := objectOf(info, id).(*types.PkgName)
	return ok
}

func objectOf(info *types.Info, id *ast.Ident) types.Object {
	if obj := info.Defs[id]; obj != nil {
		return obj
	}
	return info.Uses[id]
}

// isPackageLevel reports whether obj is declared at package scope of pkg and
// is renamed when pkg is inlined.
func isPackageLevel(pkg *packages.Package, obj types.Object) bool {
	if obj == nil || obj.Pkg() != pkg.Types || obj.Parent() != pkg.Types.Scope() {
		return false
	}
	if obj.Name() == "_" {
		return false
	}
	if fn, ok := obj.(*types.Func); ok && fn.Name() == "init" {
		return false
	}
	return true
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}
