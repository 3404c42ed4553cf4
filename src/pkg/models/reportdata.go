package models

import "time"

// ReportData represents the complete report of one pipeline run
type ReportData struct {
	ProjectDir string    `json:"projectDir"`
	Timestamp  time.Time `json:"timestamp"`
	Duration   string    `json:"duration"`

	// Bundle is nil when the run only packaged an existing bundle
	Bundle  *BundleResult `json:"bundle,omitempty"`
	Package PackageResult `json:"package"`
}
