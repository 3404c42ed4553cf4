package main

import (
	"fmt"
	"os"

	"github.com/gh-nvat/gitops-policypack/src/internal/runner"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command, parse args from CLI
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gitops-policypack",
		Short: "Bundle admission policies and package them into Kubernetes manifests",
		Long: `gitops-policypack turns an admission policy module into a self-contained bundle
and embeds it, gzip compressed and base64 encoded, into JsPolicyBundle manifests
ready to be committed to a GitOps repository.`,
		Version:       fmt.Sprintf("%s (built: %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newBuildCmd(),
		newPackageCmd(),
		newVerifyCmd(),
		newEvaluateCmd(),
	)
	return cmd
}

func newBuildCmd() *cobra.Command {
	opts := &runner.Options{}
	cmd := &cobra.Command{
		Use:   "build [project-dir]",
		Short: "Bundle the policy module and render the manifests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.ProjectDir = args[0]
			}
			return run(cmd.Context(), opts)
		},
	}
	addPipelineFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Engine, "engine", "", "Bundle engine: go or webpack (default from config, else go)")
	cmd.Flags().StringVar(&opts.Entry, "entry", "", "Policy module directory, relative to the project dir (default from config, else .)")
	return cmd
}

func newPackageCmd() *cobra.Command {
	opts := &runner.Options{SkipBundle: true}
	cmd := &cobra.Command{
		Use:   "package [project-dir]",
		Short: "Render the manifests from an existing bundle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.ProjectDir = args[0]
			}
			return run(cmd.Context(), opts)
		},
	}
	addPipelineFlags(cmd, opts)
	return cmd
}

func addPipelineFlags(cmd *cobra.Command, opts *runner.Options) {
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "",
		"Pack config file (default <project-dir>/policypack.yaml, optional)")
	cmd.Flags().StringVar(&opts.BundlePath, "bundle", "", "Bundle path, relative to the project dir")
	cmd.Flags().StringVar(&opts.Marker, "marker", "", "Placeholder replaced by the bundle payload (default ##BUNDLE##)")
	cmd.Flags().IntVar(&opts.MaxPayloadBytes, "max-payload-bytes", runner.UnsetMaxPayloadBytes,
		"Fail if the encoded bundle is larger than this, 0 disables the limit (default from config)")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Debug mode")

	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "./output",
		"Output directory for the exported reports")
	cmd.Flags().BoolVar(&opts.EnableExportReport, "enable-export-report", false, "Enable export report (json file to output dir)")
	cmd.Flags().BoolVar(&opts.EnableExportPerformanceReport, "enable-export-performance-report", false, "Enable export performance report (json file to output dir)")
}

func newVerifyCmd() *cobra.Command {
	opts := &runner.VerifyOptions{}
	var debug bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Decode a rendered JsPolicyBundle manifest and check its bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), cmd.OutOrStdout(), opts, debug)
		},
	}
	cmd.Flags().StringVar(&opts.ManifestPath, "manifest", "./manifests/jspolicybundle.yaml", "Rendered JsPolicyBundle manifest")
	cmd.Flags().StringVar(&opts.BundlePath, "bundle", "", "Bundle the manifest payload must be identical to")
	cmd.Flags().StringVar(&opts.PolicyManifestPath, "policy-manifest", "", "Rendered JsPolicy manifest whose function must be exported")
	cmd.Flags().StringVar(&opts.Engine, "engine", "go", "Engine the bundle was built with: go bundles are loaded and their exports listed")
	cmd.Flags().BoolVar(&debug, "debug", false, "Debug mode")
	return cmd
}

func newEvaluateCmd() *cobra.Command {
	opts := &runner.EvaluateOptions{}
	var debug, failOnViolation bool
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate bundled policies against an admission request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.Context(), cmd.OutOrStdout(), opts, debug, failOnViolation)
		},
	}
	cmd.Flags().StringVar(&opts.RequestPath, "request", "", "AdmissionReview, AdmissionRequest or object file, YAML or JSON (required)")
	cmd.Flags().StringVar(&opts.BundlePath, "bundle", "", "Go bundle file")
	cmd.Flags().StringVar(&opts.ManifestPath, "manifest", "", "Rendered JsPolicyBundle manifest, used instead of --bundle")
	cmd.Flags().StringSliceVar(&opts.Functions, "function", []string{}, "Exported functions to evaluate (default all)")
	cmd.Flags().StringSliceVar(&opts.RegoFiles, "rego", []string{}, "Rego modules whose deny set is evaluated as well")
	cmd.Flags().BoolVar(&failOnViolation, "fail-on-violation", false, "Exit non-zero when any policy reports a violation or fails to evaluate")
	cmd.Flags().BoolVar(&debug, "debug", false, "Debug mode")

	_ = cmd.MarkFlagRequired("request")
	return cmd
}
