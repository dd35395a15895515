package mapping

import (
	"strconv"
	"strings"
)

// Source documents are loose about scalar types: numbers arrive as strings,
// booleans as "true"/"1". Target schemas are not, so assistant tuning fields
// are coerced before they land in an output document.

func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func coerceInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	}
	return 0, false
}

func coerceBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		}
	case float64:
		return t != 0, true
	}
	return false, false
}

var assistantFloatFields = []string{"temperature", "topP"}
var assistantIntFields = []string{"contextMessageSize", "maxTokens"}
var assistantBoolFields = []string{"streamOutput", "enableMemory"}

// coerceAssistantScalars rewrites loose scalar fields in place. Fields that
// fail coercion are removed rather than passed through with the wrong type.
func coerceAssistantScalars(assistant map[string]any) {
	for _, key := range assistantFloatFields {
		if raw, ok := assistant[key]; ok {
			if f, done := coerceFloat(raw); done {
				assistant[key] = f
			} else {
				delete(assistant, key)
			}
		}
	}
	for _, key := range assistantIntFields {
		if raw, ok := assistant[key]; ok {
			if n, done := coerceInt(raw); done {
				assistant[key] = n
			} else {
				delete(assistant, key)
			}
		}
	}
	for _, key := range assistantBoolFields {
		if raw, ok := assistant[key]; ok {
			if b, done := coerceBool(raw); done {
				assistant[key] = b
			} else {
				delete(assistant, key)
			}
		}
	}
}
