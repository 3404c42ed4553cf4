// Package script loads bundled policy scripts and resolves their exported
// evaluation functions by name.
package script

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"sort"
	"strings"

	"github.com/gh-nvat/gitops-policypack/src/pkg/policy"
	"github.com/traefik/yaegi/interp"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "script")

var (
	// ErrLoad indicates that a script could not be parsed or interpreted
	ErrLoad = errors.New("failed to load policy script")
	// ErrFunctionNotFound indicates that a script does not export the requested policy
	ErrFunctionNotFound = errors.New("policy function not found")
)

var (
	requestType    = reflect.TypeOf(map[string]interface{}(nil))
	violationsType = reflect.TypeOf([]string(nil))
)

// Script is a loaded policy script.
type Script struct {
	name    string
	pkgName string
	exports map[string]reflect.Value
	names   []string
}

// Load parses and interprets src. name labels error messages and log entries.
func Load(name string, src []byte) (s *Script, err error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}

	scriptLogger := logger.WithField("script", name)
	i := interp.New(interp.Options{
		SourcecodeFilesystem: noSources{},
		Stdin:                strings.NewReader(""),
		Stdout:               logWriter{entry: scriptLogger, level: log.DebugLevel},
		Stderr:               logWriter{entry: scriptLogger, level: log.WarnLevel},
	})
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}

	// the interpreter panics on some malformed programs instead of returning an error
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("%w: %s: %v", ErrLoad, name, r)
		}
	}()

	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}

	s = &Script{
		name:    name,
		pkgName: file.Name.Name,
		exports: make(map[string]reflect.Value),
	}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || !fn.Name.IsExported() {
			continue
		}
		value, err := i.Eval(s.qualify(fn.Name.Name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: resolve %s: %v", ErrLoad, name, fn.Name.Name, err)
		}
		if !isPolicyFunc(value) {
			logger.WithField("script", name).WithField("func", fn.Name.Name).Debug("Skipping exported function without policy signature")
			continue
		}
		s.exports[fn.Name.Name] = value
		s.names = append(s.names, fn.Name.Name)
	}
	sort.Strings(s.names)

	logger.WithField("script", name).WithField("exports", s.names).Debug("Loaded policy script")
	return s, nil
}

func (s *Script) qualify(name string) string {
	if s.pkgName == "main" {
		return name
	}
	return s.pkgName + "." + name
}

func isPolicyFunc(v reflect.Value) bool {
	if !v.IsValid() || v.Kind() != reflect.Func {
		return false
	}
	t := v.Type()
	if t.NumIn() != 1 || t.In(0) != requestType || t.NumOut() != 1 {
		return false
	}
	out := t.Out(0)
	return out == violationsType || (out.Kind() == reflect.Slice && out.Elem().Kind() == reflect.String)
}

func toViolations(v reflect.Value) []string {
	if violations, ok := v.Interface().([]string); ok {
		return violations
	}
	if v.IsNil() {
		return nil
	}
	violations := make([]string, v.Len())
	for i := range violations {
		violations[i] = v.Index(i).String()
	}
	return violations
}

// Package returns the script's package name.
func (s *Script) Package() string {
	return s.pkgName
}

// Exports returns the names of the exported policy functions in sorted order.
func (s *Script) Exports() []string {
	return append([]string(nil), s.names...)
}

// Lookup returns the exported policy function called name.
func (s *Script) Lookup(name string) (policy.Func, error) {
	value, ok := s.exports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s does not export %s", ErrFunctionNotFound, s.name, name)
	}
	return func(request map[string]interface{}) []string {
		out := value.Call([]reflect.Value{reflect.ValueOf(request)})
		return toViolations(out[0])
	}, nil
}

// Register adds every exported policy function to r.
func (s *Script) Register(r *policy.Registry) error {
	for _, name := range s.names {
		fn, err := s.Lookup(name)
		if err != nil {
			return err
		}
		if err := r.RegisterFunc(name, fn); err != nil {
			return err
		}
	}
	return nil
}
