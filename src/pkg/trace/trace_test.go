package trace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer_ExportsSpans(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")

	shutdown, err := InitTracer("test", true, dir)
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "Package")
	_, child := StartSpan(ctx, "Package.Compress")
	child.End()
	span.End()
	shutdown()

	report, err := os.ReadFile(filepath.Join(dir, FileNamePerformanceReport))
	require.NoError(t, err)
	assert.Contains(t, string(report), `"Name": "Package"`)
	assert.Contains(t, string(report), `"Name": "Package.Compress"`)
}

func TestInitTracer_Disabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")

	shutdown, err := InitTracer("test", false, dir)
	require.NoError(t, err)
	_, span := StartSpan(context.TODO(), "Bundle")
	span.End()
	shutdown()

	assert.NoDirExists(t, dir)
}
