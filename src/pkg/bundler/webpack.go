package bundler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gh-nvat/gitops-policypack/src/pkg/models"
	"github.com/gh-nvat/gitops-policypack/src/pkg/template"
	"github.com/gh-nvat/gitops-policypack/src/pkg/trace"
)

const DefaultWebpackTimeout = 30 * time.Second

// CommandRunner runs name with args inside dir and returns its combined output.
type CommandRunner func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

// WebpackBundler builds a JavaScript bundle with an external webpack-cli.
type WebpackBundler struct {
	Run CommandRunner
}

var _ Bundler = (*WebpackBundler)(nil)

func NewWebpackBundler() *WebpackBundler {
	return &WebpackBundler{Run: runCommand}
}

func (b *WebpackBundler) Bundle(ctx context.Context, opts Options) (*models.BundleResult, error) {
	ctx, span := trace.StartSpan(ctx, "Bundle.Webpack")
	defer span.End()

	timeout := DefaultWebpackTimeout
	if opts.Webpack.Timeout != "" {
		d, err := time.ParseDuration(opts.Webpack.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid webpack timeout %q: %w", opts.Webpack.Timeout, err)
		}
		timeout = d
	}
	command := opts.Webpack.Command
	if len(command) == 0 {
		configFile := opts.Webpack.ConfigFile
		if configFile == "" {
			configFile = template.FileNameWebpackConfig
		}
		command = []string{"webpack-cli", "--config", configFile}
	}

	// a stale bundle must not pass for the result of this run
	if err := os.Remove(opts.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove previous bundle: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.WithField("dir", opts.ProjectDir).WithField("command", command).Info("Running webpack...")
	out, err := b.Run(ctx, opts.ProjectDir, command[0], command[1:]...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: webpack timed out after %s\n%s", ErrCompilation, timeout, out)
		}
		return nil, fmt.Errorf("%w: webpack failed: %v\n%s", ErrCompilation, err, out)
	}
	logger.Debugf("webpack output:\n%s", out)

	bundle, err := os.ReadFile(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: webpack produced no bundle at %s: %v", ErrCompilation, opts.OutputPath, err)
	}
	if len(bundle) == 0 {
		_ = os.Remove(opts.OutputPath)
		return nil, fmt.Errorf("%w: webpack produced an empty bundle at %s", ErrCompilation, opts.OutputPath)
	}

	logger.WithField("path", opts.OutputPath).Info("Bundled webpack policy module")
	return newResult(EngineWebpack, opts.OutputPath, bundle, nil), nil
}

func runCommand(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if abs, err := filepath.Abs(dir); err == nil {
		cmd.Dir = abs
	}
	return cmd.CombinedOutput()
}
