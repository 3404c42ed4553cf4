package v1beta1

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// ParseJsPolicyBundle decodes a JsPolicyBundle manifest. The base64 payload is
// decoded into Spec.Bundle; it is still gzip compressed.
func ParseJsPolicyBundle(data []byte) (*JsPolicyBundle, error) {
	bundle := &JsPolicyBundle{}
	if err := yaml.Unmarshal(data, bundle); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", KindJsPolicyBundle, err)
	}
	if err := checkTypeMeta(bundle.APIVersion, bundle.Kind, KindJsPolicyBundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// ParseJsPolicy decodes a JsPolicy manifest.
func ParseJsPolicy(data []byte) (*JsPolicy, error) {
	p := &JsPolicy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", KindJsPolicy, err)
	}
	if err := checkTypeMeta(p.APIVersion, p.Kind, KindJsPolicy); err != nil {
		return nil, err
	}
	return p, nil
}

func checkTypeMeta(apiVersion, kind, wantKind string) error {
	if kind != wantKind {
		return fmt.Errorf("expected kind %s, got %q", wantKind, kind)
	}
	if apiVersion != APIVersion {
		return fmt.Errorf("expected apiVersion %s, got %q", APIVersion, apiVersion)
	}
	return nil
}
