package template

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var (
	// ErrTemplateContract indicates a template that cannot be rendered as configured
	ErrTemplateContract = errors.New("template contract violated")
	// ErrMarkerNotFound indicates a template without the marker
	ErrMarkerNotFound = fmt.Errorf("%w: marker not found", ErrTemplateContract)
	// ErrMarkerDuplicated indicates a template with more than one marker
	ErrMarkerDuplicated = fmt.Errorf("%w: marker found more than once", ErrTemplateContract)
)

// Substitute replaces the single occurrence of marker in tmpl with payload.
// Every other byte of tmpl is kept as is.
func Substitute(tmpl, marker, payload []byte) ([]byte, error) {
	if len(marker) == 0 {
		return nil, fmt.Errorf("%w: marker must not be empty", ErrTemplateContract)
	}

	idx := bytes.Index(tmpl, marker)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMarkerNotFound, marker)
	}
	// Overlapping occurrences count too: "aa" appears twice in "aaa".
	if bytes.Contains(tmpl[idx+1:], marker) {
		return nil, fmt.Errorf("%w: %q", ErrMarkerDuplicated, marker)
	}

	out := make([]byte, 0, len(tmpl)-len(marker)+len(payload))
	out = append(out, tmpl[:idx]...)
	out = append(out, payload...)
	out = append(out, tmpl[idx+len(marker):]...)
	return out, nil
}

// ValidateYAML checks that every document in manifest parses.
func ValidateYAML(manifest []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(manifest))
	for {
		var doc yaml.Node
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: rendered manifest is not valid YAML: %v", ErrTemplateContract, err)
		}
	}
}
