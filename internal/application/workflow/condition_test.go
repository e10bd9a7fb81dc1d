package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovaluateEvaluator(t *testing.T) {
	vars := map[string]interface{}{
		"last_success":     false,
		"failed_count":     2,
		"region":           "eu",
		"nodes.a1.success": true,
		"limits":           map[string]interface{}{"max": 5.0},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{expr: "", want: true},
		{expr: "TRUE", want: true},
		{expr: " false ", want: false},
		{expr: "last_success", want: false},
		{expr: "failed_count > 1", want: true},
		{expr: "region == 'eu' && failed_count < 3", want: true},
		{expr: "[nodes.a1.success]", want: true},
		{expr: "[nodes.a1.success] == false", want: false},
		{expr: "[limits.max] >= 5", want: true},
	}
	eval := GovaluateEvaluator{}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := eval.Evaluate(tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGovaluateEvaluator_Errors(t *testing.T) {
	eval := GovaluateEvaluator{}

	_, err := eval.Evaluate("missing_var > 3", map[string]interface{}{})
	assert.Error(t, err)

	_, err = eval.Evaluate("((", nil)
	assert.Error(t, err)

	_, err = eval.Evaluate("failed_count + 1", map[string]interface{}{"failed_count": 1})
	assert.EqualError(t, err, "condition did not evaluate to boolean")
}
