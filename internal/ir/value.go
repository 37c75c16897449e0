package ir

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Record is one stored object: field name to value.
// Relation fields hold the raw identifier of their target.
type Record map[string]any

// ID returns the stringified "id" field, or "" when the record has none.
func (r Record) ID() string {
	v, ok := r["id"]
	if !ok || v == nil {
		return ""
	}
	return Stringify(v)
}

// Clone returns a shallow copy of the record with normalized values.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = Normalize(v)
	}
	return out
}

// ErrIncomparable is the sentinel wrapped by every CompareError.
var ErrIncomparable = errors.New("incomparable values")

// CompareError reports an operator applied to operands of unsupported types,
// for example an ordering comparison between a string and a number.
type CompareError struct {
	Op    string
	Left  any
	Right any
}

func (e *CompareError) Error() string {
	return fmt.Sprintf("unsupported operand types for %s: %s and %s", e.Op, typeName(e.Left), typeName(e.Right))
}

func (e *CompareError) Unwrap() error { return ErrIncomparable }

// IsCompareError returns true if err is or wraps a CompareError.
func IsCompareError(err error) bool {
	var ce *CompareError
	return errors.As(err, &ce)
}

func typeName(v any) string {
	switch Normalize(v).(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Normalize converts v into one of the canonical record shapes.
// Integral json.Numbers become int64, other numbers float64. Slices and arrays
// become []any and string-keyed maps become map[string]any, recursively.
// Values of any other type are returned unchanged.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return normalizeUint(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return normalizeUint(val)
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Normalize(elem)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = elem
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Normalize(elem)
		}
		return out
	case Record:
		return map[string]any(val.Clone())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	}
	return v
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// Stringify renders a value the way filters and the index compare it:
// strings as-is, integers in decimal, floats in shortest form, booleans as
// true/false, nil as "null" and composites as canonical JSON.
func Stringify(v any) string {
	switch val := Normalize(v).(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		b, err := MarshalCanonical(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// Key is the NFC-normalized stringification of v. It is the form used for
// index edges and exact lookups, so canonically equivalent strings match.
func Key(v any) string {
	return norm.NFC.String(Stringify(v))
}

// Equal reports whether a and b hold the same value. Integers and floats
// compare numerically; composites compare element by element.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case int64, float64:
		c, err := compareNumbers(x, b)
		return err == nil && c == 0
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// Compare orders a and b. Numbers compare with numbers, strings with strings
// and booleans with booleans (false < true). Any other pairing returns a
// CompareError.
func Compare(a, b any) (int, error) {
	a, b = Normalize(a), Normalize(b)
	switch x := a.(type) {
	case int64, float64:
		return compareNumbers(x, b)
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmp.Compare(boolRank(x), boolRank(y)), nil
		}
	}
	return 0, &CompareError{Op: "comparison", Left: a, Right: b}
}

func compareNumbers(a, b any) (int, error) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y), nil
		case float64:
			return cmp.Compare(float64(x), y), nil
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, float64(y)), nil
		case float64:
			return cmp.Compare(x, y), nil
		}
	}
	return 0, &CompareError{Op: "comparison", Left: a, Right: b}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Contains reports whether item is a member of collection. Arrays test element
// equality, strings test substring containment (item must be a string) and
// objects test key presence. Any other collection returns a CompareError.
func Contains(collection, item any) (bool, error) {
	collection, item = Normalize(collection), Normalize(item)
	switch c := collection.(type) {
	case []any:
		for _, elem := range c {
			if Equal(elem, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, &CompareError{Op: "in", Left: item, Right: collection}
		}
		return strings.Contains(c, s), nil
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return false, &CompareError{Op: "in", Left: item, Right: collection}
		}
		_, found := c[s]
		return found, nil
	default:
		return false, &CompareError{Op: "in", Left: item, Right: collection}
	}
}
