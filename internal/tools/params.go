package tools

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validation messages surfaced to users when a reply does not parse.
var (
	ErrInvalidNumber  = errors.New("Invalid number. Please provide a valid number.")
	ErrInvalidBoolean = errors.New("Invalid value. Please reply with yes/no, true/false, 1/0, or on/off.")
)

// ParseValue converts a user reply into the typed value for a parameter.
// Number and integer failures share the invalid-number message; unknown
// schema types fall back to the raw string.
func ParseValue(spec ParamSpec, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch spec.Type {
	case "number":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, ErrInvalidNumber
		}
		return v, nil
	case "integer":
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, ErrInvalidNumber
		}
		return v, nil
	case "boolean":
		switch strings.ToLower(raw) {
		case "true", "yes", "1", "on":
			return true, nil
		case "false", "no", "0", "off":
			return false, nil
		}
		return nil, ErrInvalidBoolean
	default:
		return raw, nil
	}
}

// FormatValue renders a parameter value for button labels and prompts.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}
