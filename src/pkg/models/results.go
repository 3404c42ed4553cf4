package models

const (
	PolicyEvalStatusPass  = "pass"
	PolicyEvalStatusFail  = "fail"
	PolicyEvalStatusError = "error"
)

// BundleResult describes a bundle produced by a bundler engine.
type BundleResult struct {
	Engine  string   `json:"engine"`
	Path    string   `json:"path"`
	Size    int      `json:"size"`
	SHA256  string   `json:"sha256"`
	Exports []string `json:"exports,omitempty"` // only known for the go engine
}

// PackageResult describes the manifests rendered from one bundle.
type PackageResult struct {
	BundleSize     int      `json:"bundleSize"`
	CompressedSize int      `json:"compressedSize"`
	PayloadSize    int      `json:"payloadSize"`
	BundleSHA256   string   `json:"bundleSha256"`
	Outputs        []string `json:"outputs"`
}

// PolicyEvalResult represents the result of evaluating a single policy against one request
type PolicyEvalResult struct {
	Policy       string   `json:"policy" yaml:"policy"`
	Status       string   `json:"status" yaml:"status"`                                 // "pass", "fail", or "error"
	FailMessages []string `json:"failMessages,omitempty" yaml:"failMessages,omitempty"` // violations (for "fail" status)
	ErrorMessage string   `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"` // error details (for "error" status)
}

// VerifyResult describes a bundle read back from a rendered manifest.
type VerifyResult struct {
	Manifest       string   `json:"manifest" yaml:"manifest"`
	Name           string   `json:"name" yaml:"name"`
	CompressedSize int      `json:"compressedSize" yaml:"compressedSize"`
	BundleSize     int      `json:"bundleSize" yaml:"bundleSize"`
	BundleSHA256   string   `json:"bundleSha256" yaml:"bundleSha256"`
	MatchesBundle  *bool    `json:"matchesBundle,omitempty" yaml:"matchesBundle,omitempty"` // nil when no bundle file was compared
	Exports        []string `json:"exports,omitempty" yaml:"exports,omitempty"`
	Function       string   `json:"function,omitempty" yaml:"function,omitempty"` // function referenced by the JsPolicy manifest
}

// EvaluateReport holds the results of evaluating every selected policy against one request.
type EvaluateReport struct {
	Request string             `json:"request" yaml:"request"`
	Results []PolicyEvalResult `json:"results" yaml:"results"`
}

// Violations returns the number of violations over all results.
func (r *EvaluateReport) Violations() int {
	n := 0
	for _, result := range r.Results {
		n += len(result.FailMessages)
	}
	return n
}

// Errors returns the number of policies that could not be evaluated.
func (r *EvaluateReport) Errors() int {
	n := 0
	for _, result := range r.Results {
		if result.Status == PolicyEvalStatusError {
			n++
		}
	}
	return n
}
