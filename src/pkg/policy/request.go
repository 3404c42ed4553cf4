package policy

import (
	"fmt"

	admissionv1 "k8s.io/api/admission/v1"
	"k8s.io/apimachinery/pkg/util/json"
)

// RequestDocument converts a typed admission request into the document form
// policies are evaluated against.
func RequestDocument(req *admissionv1.AdmissionRequest) (map[string]interface{}, error) {
	if req == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal admission request: %w", err)
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode admission request: %w", err)
	}
	return doc, nil
}

// ReviewRequest returns the request carried by an admission review, or the
// review itself if it already is a bare request document.
func ReviewRequest(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return map[string]interface{}{}
	}
	if kind, _ := doc["kind"].(string); kind == "AdmissionReview" {
		if req, ok := doc["request"].(map[string]interface{}); ok {
			return req
		}
		return map[string]interface{}{}
	}
	return doc
}
