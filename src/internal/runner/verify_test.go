package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gh-nvat/gitops-policypack/src/pkg/bundler"
	"github.com/gh-nvat/gitops-policypack/src/pkg/packager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packagedProject runs the whole pipeline on a copy of the example project.
func packagedProject(t *testing.T) string {
	t.Helper()
	dir := copyProject(t)
	r := newTestRunner(t, &Options{ProjectDir: dir, MaxPayloadBytes: UnsetMaxPayloadBytes})
	require.NoError(t, r.Process())
	return dir
}

func TestVerify(t *testing.T) {
	dir := packagedProject(t)

	result, err := Verify(context.Background(), VerifyOptions{
		ManifestPath: filepath.Join(dir, "manifests/jspolicybundle.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, "deny-privileged-pod.example.com", result.Name)
	assert.Nil(t, result.MatchesBundle)
	assert.Equal(t, []string{"DenyHostNetworkPod", "DenyPrivilegedPod"}, result.Exports)

	bundle, err := os.ReadFile(filepath.Join(dir, "dist/bundle.go"))
	require.NoError(t, err)
	assert.Equal(t, len(bundle), result.BundleSize)
}

func TestVerify_Mismatch(t *testing.T) {
	dir := packagedProject(t)
	other := filepath.Join(dir, "other.go")
	require.NoError(t, os.WriteFile(other, []byte("package policy\n"), 0644))

	result, err := Verify(context.Background(), VerifyOptions{
		ManifestPath: filepath.Join(dir, "manifests/jspolicybundle.yaml"),
		BundlePath:   other,
	})
	require.ErrorIs(t, err, ErrBundleMismatch)
	require.NotNil(t, result.MatchesBundle)
	assert.False(t, *result.MatchesBundle)
}

func TestVerify_UnknownFunction(t *testing.T) {
	dir := packagedProject(t)
	policyManifest := filepath.Join(dir, "manifests/jspolicy.yaml")
	require.NoError(t, os.WriteFile(policyManifest, []byte(`apiVersion: policy.jspolicy.com/v1beta1
kind: JsPolicy
metadata:
  name: "deny-privileged-pod.example.com"
spec:
  function: DenyEverything
`), 0644))

	_, err := Verify(context.Background(), VerifyOptions{
		ManifestPath:       filepath.Join(dir, "manifests/jspolicybundle.yaml"),
		PolicyManifestPath: policyManifest,
	})
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestVerify_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}
	payload, err := packager.EncodePayload([]byte("package policy\n\nfunc helper() {}\n"))
	require.NoError(t, err)
	notGzip := packager.Encode([]byte("plain"))

	tests := []struct {
		name     string
		manifest string
		engine   string
		wantErr  error
	}{
		{name: "missing manifest", wantErr: packager.ErrMissingInput},
		{
			name:     "payload not gzip",
			manifest: write("plain.yaml", "apiVersion: policy.jspolicy.com/v1beta1\nkind: JsPolicyBundle\nspec:\n  bundle: "+notGzip+"\n"),
		},
		{
			name:     "bundle without exports",
			manifest: write("noexports.yaml", "apiVersion: policy.jspolicy.com/v1beta1\nkind: JsPolicyBundle\nspec:\n  bundle: "+payload+"\n"),
			engine:   bundler.EngineGo,
			wantErr:  bundler.ErrNoExports,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest := tt.manifest
			if manifest == "" {
				manifest = filepath.Join(dir, "missing.yaml")
			}
			_, err := Verify(context.Background(), VerifyOptions{ManifestPath: manifest, Engine: tt.engine})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestVerify_WebpackBundleSkipsLoading(t *testing.T) {
	dir := t.TempDir()
	payload, err := packager.EncodePayload([]byte("module.exports={}"))
	require.NoError(t, err)
	manifest := filepath.Join(dir, "bundle.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("apiVersion: policy.jspolicy.com/v1beta1\nkind: JsPolicyBundle\nmetadata:\n  name: js\nspec:\n  bundle: \""+payload+"\"\n"), 0644))

	result, err := Verify(context.Background(), VerifyOptions{ManifestPath: manifest, Engine: bundler.EngineWebpack})
	require.NoError(t, err)
	assert.Empty(t, result.Exports)
	assert.Equal(t, len("module.exports={}"), result.BundleSize)
}
