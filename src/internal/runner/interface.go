package runner

import "github.com/gh-nvat/gitops-policypack/src/pkg/models"

type RunnerInterface interface {
	// Initialize the runner: load the pack config and pick the bundler engine
	Initialize() error

	// Bundle the policy module into the configured bundle path
	Bundle() (*models.BundleResult, error)

	// Package the bundle into the configured manifests
	Package() (*models.PackageResult, error)

	// Main routine to process the runner
	Process() error

	// Handling the export
	Output(data *models.ReportData) error
}
