package script

import (
	"context"
	"errors"
	"testing"

	"github.com/gh-nvat/gitops-policypack/src/pkg/policy"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const privilegedScript = `package policy

import (
	"fmt"

	"github.com/gh-nvat/gitops-policypack/src/pkg/policy/access"
)

func DenyPrivilegedPod(request map[string]interface{}) []string {
	pod := access.Map(request["object"])
	errors := []string{}
	errors = append(errors, privilegedContainers(pod, "containers")...)
	errors = append(errors, privilegedContainers(pod, "initContainers")...)
	return errors
}

func Describe() string {
	return "not a policy"
}

func privilegedContainers(pod map[string]interface{}, field string) []string {
	errors := []string{}
	for index, container := range access.Slice(pod, "spec", field) {
		if access.Bool(access.Map(container), "securityContext", "privileged") {
			errors = append(errors, fmt.Sprintf("spec.%s[%d].securityContext.privileged is not allowed", field, index))
		}
	}
	return errors
}
`

func TestLoad_Exports(t *testing.T) {
	s, err := Load("bundle.go", []byte(privilegedScript))
	require.NoError(t, err)
	assert.Equal(t, "policy", s.Package())
	assert.Equal(t, []string{"DenyPrivilegedPod"}, s.Exports())

	_, err = s.Lookup("Describe")
	assert.True(t, errors.Is(err, ErrFunctionNotFound))
	_, err = s.Lookup("privilegedContainers")
	assert.True(t, errors.Is(err, ErrFunctionNotFound))
}

func TestLookup_Evaluate(t *testing.T) {
	s, err := Load("bundle.go", []byte(privilegedScript))
	require.NoError(t, err)
	fn, err := s.Lookup("DenyPrivilegedPod")
	require.NoError(t, err)

	privileged := map[string]interface{}{"securityContext": map[string]interface{}{"privileged": true}}
	tests := []struct {
		name    string
		request map[string]interface{}
		want    []string
	}{
		{
			name: "privileged container",
			request: map[string]interface{}{"object": map[string]interface{}{
				"spec": map[string]interface{}{"containers": []interface{}{privileged}},
			}},
			want: []string{"spec.containers[0].securityContext.privileged is not allowed"},
		},
		{
			name: "containers before init containers",
			request: map[string]interface{}{"object": map[string]interface{}{
				"spec": map[string]interface{}{
					"containers":     []interface{}{privileged},
					"initContainers": []interface{}{privileged},
				},
			}},
			want: []string{
				"spec.containers[0].securityContext.privileged is not allowed",
				"spec.initContainers[0].securityContext.privileged is not allowed",
			},
		},
		{
			name: "no security context",
			request: map[string]interface{}{"object": map[string]interface{}{
				"spec": map[string]interface{}{"containers": []interface{}{map[string]interface{}{"name": "my-container"}}},
			}},
			want: []string{},
		},
		{
			name:    "object absent",
			request: map[string]interface{}{},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fn(tt.request))
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "syntax error",
			src:  "package policy\n\nfunc Broken(request map[string]interface{}) []string {",
		},
		{
			name: "unresolved import",
			src:  "package policy\n\nimport \"example.com/missing/lib\"\n\nfunc P(r map[string]interface{}) []string { return lib.Check(r) }\n",
		},
		{
			name: "denied import",
			src:  "package policy\n\nimport \"os\"\n\nfunc P(r map[string]interface{}) []string { return []string{os.Getenv(\"HOME\")} }\n",
		},
		{
			name: "filesystem through io/ioutil",
			src:  "package policy\n\nimport \"io/ioutil\"\n\nfunc Leak(r map[string]interface{}) []string {\n\t_ = ioutil.WriteFile(\"/tmp/leak\", []byte(\"x\"), 0644)\n\treturn nil\n}\n",
		},
		{
			name: "filesystem through path/filepath",
			src:  "package policy\n\nimport \"path/filepath\"\n\nfunc Glob(r map[string]interface{}) []string {\n\tm, _ := filepath.Glob(\"/etc/*\")\n\treturn m\n}\n",
		},
		{
			name: "filesystem through text/template",
			src:  "package policy\n\nimport \"text/template\"\n\nvar _ = template.ParseFiles\n",
		},
		{
			name: "zoneinfo through time.LoadLocation",
			src:  "package policy\n\nimport \"time\"\n\nvar _, _ = time.LoadLocation(\"Europe/Berlin\")\n",
		},
		{
			name: "type error",
			src:  "package policy\n\nfunc P(r map[string]interface{}) []string { return 42 }\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("bundle.go", []byte(tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrLoad))
		})
	}
}

func TestLoad_MainPackage(t *testing.T) {
	src := "package main\n\nfunc Deny(r map[string]interface{}) []string { return []string{\"denied\"} }\n"
	s, err := Load("main.go", []byte(src))
	require.NoError(t, err)
	fn, err := s.Lookup("Deny")
	require.NoError(t, err)
	assert.Equal(t, []string{"denied"}, fn(nil))
}

func TestRegister(t *testing.T) {
	s, err := Load("bundle.go", []byte(privilegedScript))
	require.NoError(t, err)

	r := policy.NewRegistry()
	require.NoError(t, s.Register(r))
	assert.Equal(t, []string{"DenyPrivilegedPod"}, r.Names())

	results := r.EvaluateAll(context.Background(), map[string]interface{}{"object": nil})
	require.Len(t, results, 1)
	assert.Equal(t, "pass", results[0].Status)
}

func TestIsImportable(t *testing.T) {
	assert.True(t, IsImportable("fmt"))
	assert.True(t, IsImportable("strings"))
	assert.True(t, IsImportable(AccessImportPath))
	assert.False(t, IsImportable("os"))
	assert.False(t, IsImportable("os/exec"))
	assert.False(t, IsImportable("net/http"))
	assert.False(t, IsImportable("example.com/missing/lib"))
	assert.False(t, IsImportable("io/ioutil"))
	assert.False(t, IsImportable("path/filepath"))
	assert.False(t, IsImportable("unsafe"))
}

func TestPackageName(t *testing.T) {
	tests := []struct {
		importPath string
		want       string
	}{
		{importPath: "math/rand/v2", want: "rand"},
		{importPath: "crypto/rand", want: "rand"},
		{importPath: "encoding/json", want: "json"},
		{importPath: AccessImportPath, want: "access"},
	}
	for _, tt := range tests {
		t.Run(tt.importPath, func(t *testing.T) {
			assert.True(t, IsImportable(tt.importPath))
			name, ok := PackageName(tt.importPath)
			require.True(t, ok)
			assert.Equal(t, tt.want, name)
		})
	}

	_, ok := PackageName("os")
	assert.False(t, ok)
}

func TestLoad_VersionedImport(t *testing.T) {
	src := "package policy\n\nimport \"math/rand/v2\"\n\nfunc Sample(r map[string]interface{}) []string {\n\t_ = rand.IntN(10)\n\treturn []string{}\n}\n"
	s, err := Load("bundle.go", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"Sample"}, s.Exports())
}

func TestLoad_InterpreterOutputIsLogged(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	src := "package policy\n\nfunc Broken(r map[string]interface{}) []string {\n\tvar m map[string]interface{}\n\treturn []string{m[\"x\"].(string)}\n}\n"
	s, err := Load("bundle.go", []byte(src))
	require.NoError(t, err)
	fn, err := s.Lookup("Broken")
	require.NoError(t, err)

	_, err = policy.NewFuncEvaluator("Broken", fn).Evaluate(context.Background(), map[string]interface{}{})
	require.ErrorIs(t, err, policy.ErrContractViolation)

	var logged []string
	for _, entry := range hook.AllEntries() {
		if entry.Data["script"] == "bundle.go" && entry.Level == log.WarnLevel {
			logged = append(logged, entry.Message)
		}
	}
	assert.NotEmpty(t, logged, "interpreter panic trace goes to the logger")
}

func TestLogWriter(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	w := logWriter{entry: log.NewEntry(logger), level: log.WarnLevel}

	n, err := w.Write([]byte("1:2: panic\n"))
	require.NoError(t, err)
	assert.Equal(t, len("1:2: panic\n"), n)
	_, _ = w.Write([]byte("\n"))

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "1:2: panic", hook.LastEntry().Message)
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
}
