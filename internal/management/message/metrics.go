package message

import (
	"fmt"
	"maps"
	"strconv"
)

// Metrics is the named-value map carried in a payload.
// Values are strings, integers, booleans, floats or string-typed enums.
type Metrics map[string]any

// Text returns the named metric rendered as a string.
func (m Metrics) Text(name string) (string, bool) {
	v, ok := m[name]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case fmt.Stringer:
		return x.String(), true
	}
	return fmt.Sprint(v), true
}

// Int returns the named metric as int64. Numeric strings are parsed.
func (m Metrics) Int(name string) (int64, bool) {
	switch x := m[name].(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case float64:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Bool returns the named metric as bool. "true"/"false" strings are parsed.
func (m Metrics) Bool(name string) (bool, bool) {
	switch x := m[name].(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	}
	return false, false
}

// Clone returns a shallow copy of the payload with its own body and metric map.
func (p Payload) Clone() Payload {
	return Payload{
		Body:    append([]byte(nil), p.Body...),
		Metrics: maps.Clone(p.Metrics),
	}
}
