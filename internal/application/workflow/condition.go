package workflow

import (
	"errors"
	"strings"

	"github.com/Knetic/govaluate"
)

// PredicateEvaluator decides a condition node's branch.
type PredicateEvaluator interface {
	Evaluate(predicate string, vars map[string]interface{}) (bool, error)
}

// GovaluateEvaluator evaluates predicates as govaluate boolean expressions.
// Empty predicate returns true. Supports "true"/"false" literals.
// Dotted names such as nodes.a1.success must be bracketed: [nodes.a1.success].
type GovaluateEvaluator struct{}

func (GovaluateEvaluator) Evaluate(predicate string, vars map[string]interface{}) (bool, error) {
	cond := strings.TrimSpace(predicate)
	if cond == "" {
		return true, nil
	}
	switch strings.ToLower(cond) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	expr, err := govaluate.NewEvaluableExpression(cond)
	if err != nil {
		return false, err
	}
	result, err := expr.Evaluate(buildParams(vars))
	if err != nil {
		return false, err
	}
	switch v := result.(type) {
	case bool:
		return v, nil
	default:
		return false, errors.New("condition did not evaluate to boolean")
	}
}

// buildParams keeps top-level keys and adds dotted paths for nested maps.
func buildParams(vars map[string]interface{}) map[string]interface{} {
	params := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		params[k] = v
	}
	flattenContext("", vars, params)
	return params
}

func flattenContext(prefix string, m map[string]interface{}, out map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			flattenContext(key, vv, out)
		default:
			out[key] = vv
		}
	}
}
