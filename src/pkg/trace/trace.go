// Package trace wires OpenTelemetry tracing for a pipeline run. When the
// performance report is enabled, finished spans are written as JSON to
// performance-report.json in the output directory.
package trace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "trace")

const (
	TracerName                = "github.com/gh-nvat/gitops-policypack"
	FileNamePerformanceReport = "performance-report.json"
)

// InitTracer installs the global tracer provider. The returned function flushes
// and closes the exporter and must be called before the process exits.
func InitTracer(serviceName string, enableExport bool, outputDir string) (func(), error) {
	if !enableExport {
		// spans are still created and ended, just never exported
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return func() { _ = tp.Shutdown(context.Background()) }, nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	reportPath := filepath.Join(outputDir, FileNamePerformanceReport)
	f, err := os.Create(reportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create performance report: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f), stdouttrace.WithPrettyPrint())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating stdout exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	logger.WithField("filePath", reportPath).Info("Performance report enabled")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.WithField("error", err).Warn("Failed to shut down tracer provider")
		}
		if err := f.Close(); err != nil {
			logger.WithField("error", err).Warn("Failed to close performance report")
		}
	}, nil
}

// StartSpan starts a span named name as a child of any span in ctx.
func StartSpan(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.Tracer(TracerName).Start(ctx, name)
}
