package flow

import (
	"strconv"
	"strings"
)

// Context carries the variables edge conditions can reference. The planner
// adds the implicit "iteration" variable for the node being left.
type Context struct {
	Vars map[string]any
}

// NewContext creates an empty planning context.
func NewContext() *Context {
	return &Context{Vars: map[string]any{}}
}

// WithVar sets a variable and returns the context for chaining.
func (c *Context) WithVar(key string, value any) *Context {
	if c.Vars == nil {
		c.Vars = map[string]any{}
	}
	c.Vars[key] = value

	return c
}

// comparisonOps is ordered so two-character operators win over their
// one-character prefixes.
var comparisonOps = []string{"<=", ">=", "==", "!=", "<", ">"}

// evalCondition decides whether an edge condition holds. An empty condition
// or the literal "else" always matches. A binary comparison is evaluated
// against the context; anything else is treated as an arithmetic expression
// that matches when it evaluates to a nonzero value. Unresolvable conditions
// never match.
func evalCondition(condition string, ctx *Context, iteration int) bool {
	text := strings.TrimSpace(condition)
	if text == "" || strings.EqualFold(text, "else") {
		return true
	}

	if result, ok := evalComparison(text, ctx, iteration); ok {
		return result
	}

	value, err := evalExpr(text, ctx, iteration)
	if err != nil {
		return false
	}

	return value != 0
}

// evalComparison handles "left op right" conditions. Equality compares
// strings when either side is non-numeric; ordering requires numbers.
func evalComparison(text string, ctx *Context, iteration int) (bool, bool) {
	for _, op := range comparisonOps {
		left, right, found := strings.Cut(text, op)
		if !found {
			continue
		}

		l := strings.TrimSpace(left)
		r := strings.TrimSpace(right)

		switch op {
		case "==", "!=":
			lval, lok := stringValue(l, ctx, iteration)
			rval, rok := stringValue(r, ctx, iteration)
			if !lok || !rok {
				return false, true
			}

			if op == "==" {
				return lval == rval, true
			}
			return lval != rval, true

		default:
			lnum, lok := numberValue(l, ctx, iteration)
			rnum, rok := numberValue(r, ctx, iteration)
			if !lok || !rok {
				return false, true
			}

			switch op {
			case "<":
				return lnum < rnum, true
			case "<=":
				return lnum <= rnum, true
			case ">":
				return lnum > rnum, true
			case ">=":
				return lnum >= rnum, true
			}
		}
	}

	return false, false
}

// numberValue resolves a comparison operand to a number: a literal, the
// implicit iteration counter, or a context variable.
func numberValue(token string, ctx *Context, iteration int) (float64, bool) {
	if n, err := strconv.ParseFloat(token, 64); err == nil {
		return n, true
	}

	if token == "iteration" {
		return float64(iteration), true
	}

	if ctx != nil {
		if v, ok := ctx.Vars[token]; ok {
			return asFloat(v)
		}
	}

	return 0, false
}

// stringValue resolves an equality operand: quoted literals are unquoted,
// known identifiers resolve from the context, and anything else is taken
// verbatim.
func stringValue(token string, ctx *Context, iteration int) (string, bool) {
	stripped := strings.Trim(token, `'"`)
	if stripped != token {
		return stripped, true
	}

	if token == "iteration" {
		return strconv.Itoa(iteration), true
	}

	if ctx != nil {
		if v, ok := ctx.Vars[token]; ok {
			switch val := v.(type) {
			case string:
				return val, true
			default:
				if n, ok := asFloat(v); ok {
					return strconv.FormatFloat(n, 'f', -1, 64), true
				}
				return "", false
			}
		}
	}

	return token, true
}

// asFloat coerces the numeric types YAML and callers produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
