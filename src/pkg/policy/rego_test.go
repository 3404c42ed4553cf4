package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const privilegedRego = `package podsecurity.privileged

deny[msg] {
	c := input.object.spec.containers[i]
	c.securityContext.privileged == true
	msg := sprintf("spec.containers[%d].securityContext.privileged is not allowed", [i])
}
`

func TestRegoEvaluator(t *testing.T) {
	ctx := context.Background()
	e, err := NewRegoEvaluator(ctx, "privileged.rego", privilegedRego)
	require.NoError(t, err)
	assert.Equal(t, "podsecurity.privileged", e.Name())

	tests := []struct {
		name    string
		request map[string]interface{}
		want    []string
	}{
		{
			name: "privileged container",
			request: map[string]interface{}{
				"object": map[string]interface{}{
					"spec": map[string]interface{}{
						"containers": []interface{}{
							map[string]interface{}{"securityContext": map[string]interface{}{"privileged": true}},
						},
					},
				},
			},
			want: []string{"spec.containers[0].securityContext.privileged is not allowed"},
		},
		{
			name:    "object absent",
			request: map[string]interface{}{},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(ctx, tt.request)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRegoEvaluator_ParseError(t *testing.T) {
	_, err := NewRegoEvaluator(context.Background(), "broken.rego", "package x\n deny[msg] {")
	assert.Error(t, err)
}
