// Package condition evaluates a single (field, operator, value) comparison
// against an execution payload. It backs both conditional-branch nodes and
// trigger predicates.
package condition

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/payload"
)

// Supported operators
const (
	OpEqual            = "=="
	OpNotEqual         = "!="
	OpGreaterThan      = ">"
	OpLessThan         = "<"
	OpGreaterThanEqual = ">="
	OpLessThanEqual    = "<="
	OpIncludes         = "includes"
)

// Condition is a single comparison against the payload.
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// IsConfigured reports whether all three parts of the condition are present.
func (c Condition) IsConfigured() bool {
	return c.Field != "" && c.Operator != "" && c.Value != nil
}

// OperatorFunc compares a resolved field value with the configured literal.
type OperatorFunc func(fieldValue, compareValue any) bool

// Evaluator evaluates conditions via an operator lookup table.
type Evaluator struct {
	operators map[string]OperatorFunc
	logger    *slog.Logger
}

// NewEvaluator creates an evaluator with all supported operators registered.
func NewEvaluator() *Evaluator {
	e := &Evaluator{
		operators: make(map[string]OperatorFunc),
		logger:    slog.Default().With("component", "condition-evaluator"),
	}

	e.operators[OpEqual] = operatorEqual
	e.operators[OpNotEqual] = func(a, b any) bool { return !operatorEqual(a, b) }
	e.operators[OpGreaterThan] = numericOperator(func(a, b float64) bool { return a > b })
	e.operators[OpLessThan] = numericOperator(func(a, b float64) bool { return a < b })
	e.operators[OpGreaterThanEqual] = numericOperator(func(a, b float64) bool { return a >= b })
	e.operators[OpLessThanEqual] = numericOperator(func(a, b float64) bool { return a <= b })
	e.operators[OpIncludes] = operatorIncludes

	return e
}

// Evaluate applies the condition to the payload.
//
// An incompletely configured condition evaluates to true so half-built
// flows pass through their branch nodes; a configured condition whose field
// does not resolve evaluates to false. Unknown operators evaluate to false
// with a warning.
func (e *Evaluator) Evaluate(p payload.Payload, c Condition) bool {
	if !c.IsConfigured() {
		return true
	}

	fieldValue, ok := p.Resolve(c.Field)
	if !ok {
		return false
	}

	opFunc, ok := e.operators[c.Operator]
	if !ok {
		e.logger.Warn("Unknown condition operator", "operator", c.Operator, "field", c.Field)
		return false
	}

	return opFunc(fieldValue, c.Value)
}

func operatorEqual(fieldValue, compareValue any) bool {
	// Numbers compare numerically when both sides parse
	aNum, aOK := toFloat64(fieldValue)
	bNum, bOK := toFloat64(compareValue)
	if aOK && bOK {
		return aNum == bNum
	}

	// Otherwise trimmed case-insensitive string comparison
	return normalize(fieldValue) == normalize(compareValue)
}

func operatorIncludes(fieldValue, compareValue any) bool {
	return strings.Contains(normalize(fieldValue), normalize(compareValue))
}

// numericOperator wraps a float comparison; non-numeric operands fail the
// condition rather than falling back to string ordering.
func numericOperator(cmp func(a, b float64) bool) OperatorFunc {
	return func(fieldValue, compareValue any) bool {
		aNum, aOK := toFloat64(fieldValue)
		bNum, bOK := toFloat64(compareValue)
		if !aOK || !bOK {
			return false
		}
		return cmp(aNum, bNum)
	}
}

func normalize(val any) string {
	return strings.ToLower(strings.TrimSpace(payload.Stringify(val)))
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
