package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gh-nvat/gitops-policypack/src/internal/runner"
	"github.com/gh-nvat/gitops-policypack/src/pkg/bundler"
	"github.com/gh-nvat/gitops-policypack/src/pkg/packager"
	"github.com/gh-nvat/gitops-policypack/src/pkg/trace"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var logger *log.Entry = log.New().WithFields(log.Fields{
	"package": "run",
})

const serviceName = "gitops-policypack"

// ErrViolations is returned by evaluate when --fail-on-violation is set and a policy objected
var ErrViolations = errors.New("policy violations found")

// ErrPolicyErrors is returned by evaluate when --fail-on-violation is set and a
// policy could not be evaluated
var ErrPolicyErrors = errors.New("policies failed to evaluate")

// createRunner creates the runner. The bundler engine is chosen from the pack
// config during Initialize.
func createRunner(ctx context.Context, opts *runner.Options) (runner.RunnerInterface, error) {
	logger.WithField("opts", opts).Debug("Creating runner..")

	r, err := runner.NewRunnerBase(ctx, opts, nil, packager.NewPackager())
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	return r, nil
}

func initialize(ctx context.Context, opts *runner.Options) (runner.RunnerInterface, error) {
	runner, err := createRunner(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := runner.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize runner: %w", err)
	}
	return runner, nil
}

func run(ctx context.Context, opts *runner.Options) error {
	logger.WithField("opts", opts).Info("Running..")
	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}

	// Validate options
	if err := validateOptions(opts); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	// Initialize tracer
	shutdown, err := trace.InitTracer(serviceName, opts.EnableExportPerformanceReport, opts.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer shutdown()

	// Initialize runner
	appRunner, err := initialize(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	err = appRunner.Process()
	if err != nil {
		return fmt.Errorf("failed to process: %w", err)
	}

	return nil
}

func validateOptions(opts *runner.Options) error {
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}
	if opts.Engine != "" && opts.Engine != bundler.EngineGo && opts.Engine != bundler.EngineWebpack {
		return fmt.Errorf("engine must be '%s' or '%s', got: %s", bundler.EngineGo, bundler.EngineWebpack, opts.Engine)
	}
	if opts.MaxPayloadBytes < runner.UnsetMaxPayloadBytes {
		return fmt.Errorf("max-payload-bytes must not be negative, got: %d", opts.MaxPayloadBytes)
	}
	if (opts.EnableExportReport || opts.EnableExportPerformanceReport) && opts.OutputDir == "" {
		return fmt.Errorf("output-dir is required when exporting reports")
	}
	return nil
}

func runVerify(ctx context.Context, out io.Writer, opts *runner.VerifyOptions, debug bool) error {
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	if opts.ManifestPath == "" {
		return fmt.Errorf("invalid options: --manifest is required")
	}

	result, err := runner.Verify(ctx, *opts)
	if result != nil {
		if printErr := printYAML(out, result); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	return nil
}

func runEvaluate(ctx context.Context, out io.Writer, opts *runner.EvaluateOptions, debug, failOnViolation bool) error {
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	if opts.BundlePath != "" && opts.ManifestPath != "" {
		return fmt.Errorf("invalid options: --bundle and --manifest are mutually exclusive")
	}

	report, err := runner.Evaluate(ctx, *opts)
	if err != nil {
		return fmt.Errorf("failed to evaluate: %w", err)
	}
	if err := printYAML(out, report); err != nil {
		return err
	}
	if !failOnViolation {
		return nil
	}
	if n := report.Errors(); n > 0 {
		return fmt.Errorf("%w: %d", ErrPolicyErrors, n)
	}
	if n := report.Violations(); n > 0 {
		return fmt.Errorf("%w: %d", ErrViolations, n)
	}
	return nil
}

func printYAML(out io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return enc.Close()
}
