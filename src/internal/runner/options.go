package runner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gh-nvat/gitops-policypack/src/pkg/bundler"
	"github.com/gh-nvat/gitops-policypack/src/pkg/models"
	"github.com/gh-nvat/gitops-policypack/src/pkg/template"
	"gopkg.in/yaml.v3"
)

// UnsetMaxPayloadBytes leaves the payload limit to the config file.
const UnsetMaxPayloadBytes = -1

type Options struct {
	Debug bool // Debug mode

	// Project
	ProjectDir string // Directory holding the policy project (default: .)
	ConfigFile string // Pack config, default <ProjectDir>/policypack.yaml; optional unless set explicitly

	// Overrides of the pack config, empty means "use the config file or default"
	Engine          string
	Entry           string
	BundlePath      string
	Marker          string
	MaxPayloadBytes int // UnsetMaxPayloadBytes: use config; 0 disables the limit

	// Skip the bundler and package an existing bundle
	SkipBundle bool

	// Reporting
	OutputDir                     string
	EnableExportReport            bool
	EnableExportPerformanceReport bool
}

// LoadPackConfig reads the pack config, applies the overrides from o and the
// defaults, and resolves every path against the project directory.
func (o *Options) LoadPackConfig() (*models.PackConfig, error) {
	projectDir := o.ProjectDir
	if projectDir == "" {
		projectDir = "."
	}

	cfg := &models.PackConfig{}
	configFile := o.ConfigFile
	explicit := configFile != ""
	if !explicit {
		configFile = filepath.Join(projectDir, template.FileNamePackConfig)
	}
	data, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err := decodePackConfig(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid pack config %s: %w", configFile, err)
		}
		logger.WithField("configFile", configFile).Info("Loaded pack config")
	case errors.Is(err, os.ErrNotExist) && !explicit:
		logger.WithField("configFile", configFile).Debug("No pack config found, using defaults")
	default:
		return nil, fmt.Errorf("failed to read pack config: %w", err)
	}

	o.applyOverrides(cfg)
	applyDefaults(cfg)
	if cfg.Engine != bundler.EngineGo && cfg.Engine != bundler.EngineWebpack {
		return nil, fmt.Errorf("engine must be '%s' or '%s', got: %s", bundler.EngineGo, bundler.EngineWebpack, cfg.Engine)
	}
	if cfg.MaxPayloadBytes < 0 {
		return nil, fmt.Errorf("maxPayloadBytes must not be negative, got: %d", cfg.MaxPayloadBytes)
	}
	resolvePaths(cfg, projectDir)
	return cfg, nil
}

func decodePackConfig(data []byte, cfg *models.PackConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (o *Options) applyOverrides(cfg *models.PackConfig) {
	if o.Engine != "" {
		cfg.Engine = o.Engine
	}
	if o.Entry != "" {
		cfg.Entry = o.Entry
	}
	if o.BundlePath != "" {
		cfg.BundlePath = o.BundlePath
	}
	if o.Marker != "" {
		cfg.Marker = o.Marker
	}
	if o.MaxPayloadBytes != UnsetMaxPayloadBytes {
		cfg.MaxPayloadBytes = o.MaxPayloadBytes
	}
}

func applyDefaults(cfg *models.PackConfig) {
	if cfg.Engine == "" {
		cfg.Engine = bundler.EngineGo
	}
	if cfg.Entry == "" {
		cfg.Entry = "."
	}
	if cfg.BundlePath == "" {
		cfg.BundlePath = template.FileNameGoBundle
		if cfg.Engine == bundler.EngineWebpack {
			cfg.BundlePath = template.FileNameWebpackBundle
		}
	}
	if cfg.Marker == "" {
		cfg.Marker = template.DefaultMarker
	}
	if len(cfg.Templates) == 0 {
		cfg.Templates = []models.TemplateConfig{
			{Path: template.FileNamePolicyTemplate, Output: template.FileNamePolicyManifest},
			{Path: template.FileNameBundleTemplate, Output: template.FileNameBundleManifest, Substitute: true},
		}
	}
}

func resolvePaths(cfg *models.PackConfig, projectDir string) {
	resolve := func(path string) string {
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(projectDir, path)
	}
	cfg.Entry = resolve(cfg.Entry)
	cfg.BundlePath = resolve(cfg.BundlePath)
	for i := range cfg.Templates {
		cfg.Templates[i].Path = resolve(cfg.Templates[i].Path)
		cfg.Templates[i].Output = resolve(cfg.Templates[i].Output)
	}
}
