package v1beta1

import (
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

type PolicyType string

const (
	PolicyTypeValidating PolicyType = "Validating"
	PolicyTypeMutating   PolicyType = "Mutating"
	PolicyTypeController PolicyType = "Controller"
)

// JsPolicy declares which requests a bundled policy function is invoked for.
type JsPolicy struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec JsPolicySpec `json:"spec,omitempty"`
}

type JsPolicySpec struct {
	// Operations is the list of admission operations the policy applies to
	// +optional
	Operations []admissionregistrationv1.OperationType `json:"operations,omitempty"`

	// Resources is the list of resources the policy applies to, e.g. pods
	// +optional
	Resources []string `json:"resources,omitempty"`

	// +optional
	APIGroups []string `json:"apiGroups,omitempty"`

	// +optional
	APIVersions []string `json:"apiVersions,omitempty"`

	// +optional
	Scope *admissionregistrationv1.ScopeType `json:"scope,omitempty"`

	// +optional
	Type PolicyType `json:"type,omitempty"`

	// +optional
	FailurePolicy *admissionregistrationv1.FailurePolicyType `json:"failurePolicy,omitempty"`

	// Function is the exported bundle function evaluated for matching requests
	// +optional
	Function string `json:"function,omitempty"`
}

// JsPolicyBundle holds the bundled payload
type JsPolicyBundle struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   JsPolicyBundleSpec   `json:"spec,omitempty"`
	Status JsPolicyBundleStatus `json:"status,omitempty"`
}

type JsPolicyBundleSpec struct {
	// Bundle holds the gzip compressed bundle. It is base64 encoded in the manifest.
	// +optional
	Bundle []byte `json:"bundle,omitempty"`
}

type JsPolicyBundleStatus struct {
}
