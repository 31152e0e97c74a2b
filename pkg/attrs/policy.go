// Package attrs decides how a required pattern attribute value is compared
// with the value stored on a target node or relationship.
//
// Pattern requirements are always strings. Target values may be strings or
// numbers. Attribute names classified as integer-typed compare numerically
// when both sides are integral; everything else compares by string form.
// The classification is configuration data (see pkg/config), not code.
package attrs

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultIntAttributes is the integer-typed name list used when no
// configuration overrides it.
var DefaultIntAttributes = []string{
	"id",
	"age",
	"detailed industry recode",
	"detailed occupation recode",
	"wage per hour",
	"capital gains",
	"capital losses",
	"dividends from stocks",
	"num persons worked for employer",
	"weeks worked in year",
	"own business or self employed",
	"veterans benefits",
	"year",
	"weight",
}

// Policy classifies attribute names. The zero value treats every name as a
// string attribute. A Policy is immutable and safe for concurrent use.
type Policy struct {
	ints map[string]struct{}
}

// NewPolicy returns a policy treating the given names as integers.
func NewPolicy(intNames []string) *Policy {
	p := &Policy{ints: make(map[string]struct{}, len(intNames))}
	for _, n := range intNames {
		p.ints[n] = struct{}{}
	}
	return p
}

// DefaultPolicy uses DefaultIntAttributes.
func DefaultPolicy() *Policy { return NewPolicy(DefaultIntAttributes) }

// IsInt reports whether name is integer-typed.
func (p *Policy) IsInt(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.ints[name]
	return ok
}

// IntNames returns the integer-typed names, sorted.
func (p *Policy) IntNames() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.ints))
	for n := range p.ints {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Match reports whether a stored value satisfies a required value for the
// named attribute.
func (p *Policy) Match(name, required string, actual any) bool {
	if p.IsInt(name) {
		if want, err := strconv.ParseInt(required, 10, 64); err == nil {
			if got, ok := AsInt(actual); ok {
				return want == got
			}
		}
	}
	return required == Format(actual)
}

// Canonical maps a value to the key under which it is indexed for probes.
// Values that Match agree on always share a canonical key; the converse need
// not hold, so probe results are filtered again with Match.
func (p *Policy) Canonical(name string, value any) string {
	s := Format(value)
	if p.IsInt(name) {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
	}
	return s
}

// AsInt converts integral stored values. Strings are not integral.
func AsInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float64:
		// JSON numbers decode as float64.
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), true
		}
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return AsInt(f)
		}
	case float32:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<24 {
			return int64(f), true
		}
	}
	return 0, false
}

// Format renders a stored value the way string comparison sees it.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if i, ok := AsInt(x); ok {
			return strconv.FormatInt(i, 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case json.Number:
		if i, ok := AsInt(x); ok {
			return strconv.FormatInt(i, 10)
		}
		if f, err := x.Float64(); err == nil {
			return Format(f)
		}
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
