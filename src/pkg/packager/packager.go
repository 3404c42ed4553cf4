// Package packager embeds a bundle into manifest templates: the bundle is
// gzipped, base64 encoded and substituted for the marker of every template
// configured to receive it.
package packager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gh-nvat/gitops-policypack/src/pkg/models"
	"github.com/gh-nvat/gitops-policypack/src/pkg/output"
	"github.com/gh-nvat/gitops-policypack/src/pkg/template"
	"github.com/gh-nvat/gitops-policypack/src/pkg/trace"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "packager")

var (
	// ErrMissingInput indicates that the bundle or a template does not exist
	ErrMissingInput = errors.New("missing input file")
	// ErrPayloadTooLarge indicates that the encoded bundle exceeds the configured limit
	ErrPayloadTooLarge = errors.New("encoded bundle exceeds the size limit")
	// ErrInvalidConfig indicates an unusable packaging configuration
	ErrInvalidConfig = errors.New("invalid packaging configuration")
)

// WarnPayloadBytes is the payload size above which a warning is logged. Object
// size limits of the API server are in the low megabytes.
const WarnPayloadBytes = 1 << 20

// Options describes one packaging run. Paths are used as given.
type Options struct {
	BundlePath      string
	Marker          string
	MaxPayloadBytes int // 0 disables the limit
	Templates       []models.TemplateConfig
}

// Packager renders manifests from a bundle
type Packager struct{}

func NewPackager() *Packager {
	return &Packager{}
}

// Package reads the bundle and templates, renders every template and writes
// the results. Nothing is written unless every input was read and every
// template rendered.
func (p *Packager) Package(ctx context.Context, opts Options) (*models.PackageResult, error) {
	ctx, span := trace.StartSpan(ctx, "Package")
	defer span.End()

	logger.Info("Package: starting...")
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	bundle, err := readInput(opts.BundlePath)
	if err != nil {
		return nil, err
	}
	templates := make([][]byte, len(opts.Templates))
	for i, tmpl := range opts.Templates {
		if templates[i], err = readInput(tmpl.Path); err != nil {
			return nil, err
		}
	}

	_, compressSpan := trace.StartSpan(ctx, "Package.Compress")
	compressed, err := Compress(bundle)
	compressSpan.End()
	if err != nil {
		return nil, fmt.Errorf("failed to compress bundle: %w", err)
	}
	payload := Encode(compressed)
	logger.WithField("bundleSize", len(bundle)).
		WithField("compressedSize", len(compressed)).
		WithField("payloadSize", len(payload)).
		Info("Compressed bundle")

	if opts.MaxPayloadBytes > 0 && len(payload) > opts.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(payload), opts.MaxPayloadBytes)
	}
	if len(payload) > WarnPayloadBytes {
		logger.WithField("payloadSize", len(payload)).Warn("Encoded bundle is larger than 1MiB, the API server may reject the manifest")
	}

	_, renderSpan := trace.StartSpan(ctx, "Package.Render")
	files := make(map[string][]byte, len(opts.Templates))
	order := make([]string, 0, len(opts.Templates))
	for i, tmpl := range opts.Templates {
		rendered := templates[i]
		if tmpl.Substitute {
			rendered, err = template.Substitute(templates[i], []byte(opts.Marker), []byte(payload))
			if err != nil {
				renderSpan.End()
				return nil, fmt.Errorf("template %s: %w", tmpl.Path, err)
			}
			if err := template.ValidateYAML(rendered); err != nil {
				renderSpan.End()
				return nil, fmt.Errorf("template %s: %w", tmpl.Path, err)
			}
		}
		files[tmpl.Output] = rendered
		order = append(order, tmpl.Output)
	}
	renderSpan.End()

	_, writeSpan := trace.StartSpan(ctx, "Package.Write")
	err = output.WriteFiles(files, order)
	writeSpan.End()
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(bundle)
	logger.Info("Package: done.")
	return &models.PackageResult{
		BundleSize:     len(bundle),
		CompressedSize: len(compressed),
		PayloadSize:    len(payload),
		BundleSHA256:   hex.EncodeToString(sum[:]),
		Outputs:        order,
	}, nil
}

func validateOptions(opts Options) error {
	if opts.BundlePath == "" {
		return fmt.Errorf("%w: bundle path is required", ErrInvalidConfig)
	}
	if opts.Marker == "" {
		return fmt.Errorf("%w: marker is required", ErrInvalidConfig)
	}
	if len(opts.Templates) == 0 {
		return fmt.Errorf("%w: no templates configured", ErrInvalidConfig)
	}

	substituted := 0
	outputs := make(map[string]string, len(opts.Templates))
	for _, tmpl := range opts.Templates {
		if tmpl.Path == "" || tmpl.Output == "" {
			return fmt.Errorf("%w: template path and output are required", ErrInvalidConfig)
		}
		out := filepath.Clean(tmpl.Output)
		if other, ok := outputs[out]; ok {
			return fmt.Errorf("%w: templates %s and %s both write %s", ErrInvalidConfig, other, tmpl.Path, tmpl.Output)
		}
		outputs[out] = tmpl.Path
		if filepath.Clean(tmpl.Path) == out || filepath.Clean(opts.BundlePath) == out {
			return fmt.Errorf("%w: output %s would overwrite an input", ErrInvalidConfig, tmpl.Output)
		}
		if tmpl.Substitute {
			substituted++
		}
	}
	if substituted == 0 {
		return fmt.Errorf("%w: no template is marked to receive the bundle", ErrInvalidConfig)
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
