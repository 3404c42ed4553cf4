package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gh-nvat/gitops-policypack/src/pkg/bundler"
	"github.com/gh-nvat/gitops-policypack/src/pkg/models"
	"github.com/gh-nvat/gitops-policypack/src/pkg/packager"
	"github.com/gh-nvat/gitops-policypack/src/pkg/trace"

	log "github.com/sirupsen/logrus"
)

var logger *log.Entry = log.New().WithFields(log.Fields{
	"package": "runner",
})

const FileNameReport = "report.json"

type RunnerBase struct {
	Context context.Context
	Options *Options
	Config  *models.PackConfig

	Bundler  bundler.Bundler
	Packager *packager.Packager
}

// make RunnerBase implement RunnerInterface
var _ RunnerInterface = (*RunnerBase)(nil)

// NewRunnerBase creates a runner. A nil bundler is replaced during Initialize
// by the one the pack config selects.
func NewRunnerBase(
	ctx context.Context,
	options *Options,
	b bundler.Bundler,
	p *packager.Packager,
) (*RunnerBase, error) {
	if options == nil {
		return nil, fmt.Errorf("options are required")
	}
	runner := &RunnerBase{
		Context:  ctx,
		Options:  options,
		Bundler:  b,
		Packager: p,
	}
	return runner, nil
}

func (r *RunnerBase) Initialize() error {
	logger.Info("Initializing runner: starting...")

	if r.Packager == nil {
		return fmt.Errorf("packager is required")
	}

	logger.Info("Initialize runner: Loading pack configuration")
	cfg, err := r.Options.LoadPackConfig()
	if err != nil {
		return fmt.Errorf("failed to load pack config: %w", err)
	}
	r.Config = cfg
	logger.WithField("config", cfg).Debug("Resolved pack configuration")

	if r.Bundler == nil && !r.Options.SkipBundle {
		b, err := bundler.New(cfg.Engine)
		if err != nil {
			return err
		}
		r.Bundler = b
	}

	logger.Info("Initialize runner: done.")
	return nil
}

func (r *RunnerBase) Bundle() (*models.BundleResult, error) {
	ctx, span := trace.StartSpan(r.Context, "Bundle")
	defer span.End()
	logger.Info("Bundle: starting...")

	if r.Bundler == nil {
		return nil, fmt.Errorf("runner is not initialized")
	}
	result, err := r.Bundler.Bundle(ctx, bundler.Options{
		ProjectDir: r.projectDir(),
		Entry:      r.Config.Entry,
		OutputPath: r.Config.BundlePath,
		Webpack:    r.Config.Webpack,
	})
	if err != nil {
		return nil, err
	}

	logger.WithField("path", result.Path).WithField("size", result.Size).Info("Bundle: done.")
	return result, nil
}

func (r *RunnerBase) Package() (*models.PackageResult, error) {
	ctx, span := trace.StartSpan(r.Context, "Package")
	defer span.End()

	if r.Config == nil {
		return nil, fmt.Errorf("runner is not initialized")
	}
	return r.Packager.Package(ctx, packager.Options{
		BundlePath:      r.Config.BundlePath,
		Marker:          r.Config.Marker,
		MaxPayloadBytes: r.Config.MaxPayloadBytes,
		Templates:       r.Config.Templates,
	})
}

func (r *RunnerBase) Process() error {
	_, span := trace.StartSpan(r.Context, "Process")
	defer span.End()
	logger.Info("Process: starting...")
	start := time.Now()

	var bundleResult *models.BundleResult
	if r.Options.SkipBundle {
		logger.WithField("bundlePath", r.Config.BundlePath).Info("Process: bundling skipped, packaging existing bundle")
	} else {
		result, err := r.Bundle()
		if err != nil {
			return err
		}
		bundleResult = result
	}

	packageResult, err := r.Package()
	if err != nil {
		return err
	}
	logger.WithField("results", packageResult).Debug("Packaged bundle")

	reportData := models.ReportData{
		ProjectDir: r.projectDir(),
		Timestamp:  start,
		Duration:   time.Since(start).String(),
		Bundle:     bundleResult,
		Package:    *packageResult,
	}
	if err := r.Output(&reportData); err != nil {
		return err
	}

	logger.Info("Process: done.")
	return nil
}

func (r *RunnerBase) Output(data *models.ReportData) error {
	_, span := trace.StartSpan(r.Context, "Output")
	defer span.End()

	logger.Info("Output: starting...")
	if err := r.outputReportJson(data); err != nil {
		return err
	}
	logger.Info("Output: done.")
	return nil
}

// Exporting report json file to output directory if enabled
func (r *RunnerBase) outputReportJson(data *models.ReportData) error {
	if !r.Options.EnableExportReport {
		logger.Info("OutputJson: option was disabled")
		return nil
	}
	logger.Info("OutputJson: starting...")

	if err := os.MkdirAll(r.Options.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	resultsJson, err := json.Marshal(data)
	if err != nil {
		return err
	}
	filePath := filepath.Join(r.Options.OutputDir, FileNameReport)
	if err := os.WriteFile(filePath, resultsJson, 0644); err != nil {
		logger.WithField("filePath", filePath).WithField("error", err).Error("Failed to write report data to file")
		return err
	}
	logger.WithField("filePath", filePath).Info("Written report data to file")
	return nil
}

func (r *RunnerBase) projectDir() string {
	if r.Options.ProjectDir == "" {
		return "."
	}
	return r.Options.ProjectDir
}
