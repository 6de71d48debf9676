package view

import (
	"math"
	"regexp"
	"strings"
)

// Operator names a filter comparison.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "notequals"
	OpContains  Operator = "contains"
	OpStarts    Operator = "starts"
	OpEnds      Operator = "ends"
	OpRegex     Operator = "regex"
	OpIsNull    Operator = "isnull"
	OpIsNotNull Operator = "isnotnull"
	OpGT        Operator = "gt"
	OpLT        Operator = "lt"
	OpGTE       Operator = "gte"
	OpLTE       Operator = "lte"
)

// Known reports whether op is one of the operators above.
func (op Operator) Known() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpStarts, OpEnds, OpRegex,
		OpIsNull, OpIsNotNull, OpGT, OpLT, OpGTE, OpLTE:
		return true
	}
	return false
}

// NeedsValue reports whether op compares against Predicate.Value.
func (op Operator) NeedsValue() bool {
	return op.Known() && op != OpIsNull && op != OpIsNotNull
}

// Predicate is one column filter.
//
// A predicate with no column or operator, an unknown operator, or an empty
// value for an operator that needs one matches every row.
type Predicate struct {
	Column   string   `json:"column" mapstructure:"column"`
	Operator Operator `json:"operator" mapstructure:"operator"`
	Value    string   `json:"value" mapstructure:"value"`
}

func (p Predicate) vacuous() bool {
	return p.Column == "" || p.Operator == "" || !p.Operator.Known() ||
		(p.Operator.NeedsValue() && p.Value == "")
}

// match evaluates p against one cell. String operators compare case-folded
// Stringify output; numeric operators compare ToNumber results, and any NaN
// side is false.
func (ev *evaluator) match(p Predicate, v any, present bool) bool {
	switch p.Operator {
	case OpIsNull:
		return isNull(v, present)
	case OpIsNotNull:
		return !isNull(v, present)
	case OpEquals:
		return ev.fold(Stringify(v, present)) == ev.fold(p.Value)
	case OpNotEquals:
		return ev.fold(Stringify(v, present)) != ev.fold(p.Value)
	case OpContains:
		return strings.Contains(ev.fold(Stringify(v, present)), ev.fold(p.Value))
	case OpStarts:
		return strings.HasPrefix(ev.fold(Stringify(v, present)), ev.fold(p.Value))
	case OpEnds:
		return strings.HasSuffix(ev.fold(Stringify(v, present)), ev.fold(p.Value))
	case OpRegex:
		re := ev.compileRegex(p.Value)
		if re == nil {
			return true
		}
		return re.MatchString(Stringify(v, present))
	case OpGT, OpLT, OpGTE, OpLTE:
		a, b := ToNumber(v, present), parseNumber(p.Value)
		if math.IsNaN(a) || math.IsNaN(b) {
			return false
		}
		switch p.Operator {
		case OpGT:
			return a > b
		case OpLT:
			return a < b
		case OpGTE:
			return a >= b
		default:
			return a <= b
		}
	}
	return true
}

func isNull(v any, present bool) bool {
	if !present || v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

type compiled struct {
	re  *regexp.Regexp
	err error
}

// compileRegex returns the case-insensitive compiled pattern, or nil when it does
// not compile. Each invalid pattern is reported once per evaluation.
func (ev *evaluator) compileRegex(pattern string) *regexp.Regexp {
	c, ok := ev.cache.Get(pattern)
	if !ok {
		re, err := regexp.Compile("(?i)" + pattern)
		c = compiled{re: re, err: err}
		ev.cache.Add(pattern, c)
	}
	if c.err != nil {
		if _, seen := ev.badPatterns[pattern]; !seen {
			ev.badPatterns[pattern] = struct{}{}
			ev.diagf("view: invalid regex %q ignored: %v", pattern, c.err)
		}
		return nil
	}
	return c.re
}
