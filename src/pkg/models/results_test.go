package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateReport_Counts(t *testing.T) {
	report := EvaluateReport{Results: []PolicyEvalResult{
		{Policy: "A", Status: PolicyEvalStatusPass},
		{Policy: "B", Status: PolicyEvalStatusFail, FailMessages: []string{"one", "two"}},
		{Policy: "C", Status: PolicyEvalStatusError, ErrorMessage: "panic"},
		{Policy: "D", Status: PolicyEvalStatusError, ErrorMessage: "timeout"},
	}}

	assert.Equal(t, 2, report.Violations())
	assert.Equal(t, 2, report.Errors())
	assert.Equal(t, 0, (&EvaluateReport{}).Errors())
}
