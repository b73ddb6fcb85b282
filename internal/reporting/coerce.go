package reporting

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Payload is a decoded JSON object submitted by a client.
type Payload map[string]interface{}

// lookup returns the first present, non-null key among names. The returned key
// is the one the caller used, so errors can name it.
func (p Payload) lookup(names ...string) (string, interface{}, bool) {
	for _, name := range names {
		if v, ok := p[name]; ok && v != nil {
			return name, v, true
		}
	}
	return names[0], nil, false
}

func (p Payload) requiredInt(names ...string) (int64, error) {
	key, v, ok := p.lookup(names...)
	if !ok {
		return 0, missing(key)
	}
	return toInt(key, v)
}

func (p Payload) optionalInt(names ...string) (*int64, error) {
	key, v, ok := p.lookup(names...)
	if !ok {
		return nil, nil
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	n, err := toInt(key, v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (p Payload) optionalString(def string, names ...string) (string, error) {
	key, v, ok := p.lookup(names...)
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case string:
		if t = strings.TrimSpace(t); t == "" {
			return def, nil
		}
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int, int64:
		return fmt.Sprint(t), nil
	}
	return "", &ValidationError{Field: key, Reason: "must be a string"}
}

func (p Payload) optionalBool(def bool, names ...string) (bool, error) {
	key, v, ok := p.lookup(names...)
	if !ok {
		return def, nil
	}
	return toBool(key, v)
}

func toInt(field string, v interface{}) (int64, error) {
	notNumeric := &ValidationError{Field: field, Reason: "must be numeric"}
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float32:
		return floatToInt(float64(t), notNumeric)
	case float64:
		return floatToInt(t, notNumeric)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, notNumeric
		}
		return floatToInt(f, notNumeric)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, notNumeric
		}
		return n, nil
	}
	return 0, notNumeric
}

func floatToInt(f float64, errNotNumeric error) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errNotNumeric
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, errNotNumeric
	}
	return int64(f), nil
}

func toBool(field string, v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case json.Number:
		f, err := t.Float64()
		if err == nil {
			return f != 0, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "si", "sí":
			return true, nil
		case "false", "0", "no", "":
			return false, nil
		}
	}
	return false, &ValidationError{Field: field, Reason: "must be a boolean"}
}
