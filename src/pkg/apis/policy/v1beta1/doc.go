// Package v1beta1 contains the policy.jspolicy.com/v1beta1 resources the
// packager renders. Only the fields needed to read back a rendered manifest
// are modelled.
package v1beta1

const (
	GroupName = "policy.jspolicy.com"
	Version   = "v1beta1"

	KindJsPolicy       = "JsPolicy"
	KindJsPolicyBundle = "JsPolicyBundle"
)

// APIVersion is the apiVersion every manifest of this package carries.
var APIVersion = GroupName + "/" + Version
