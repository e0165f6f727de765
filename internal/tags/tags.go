// Package tags converts the persisted tag column into a string list.
//
// Rows written by this service hold a JSON array. Older rows may hold a
// comma separated string, sometimes with leftover brackets or quotes, so
// decoding falls back to a lenient split whenever strict JSON does not yield
// an array.
package tags

import (
	"encoding/json"
	"strings"
)

var stripper = strings.NewReplacer("[", "", "]", "", `"`, "", "'", "")

// Decode never fails. Unknown or malformed input degrades to the best
// effort list, possibly empty.
func Decode(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return []string{}
	case string:
		return decodeString(v)
	case *string:
		if v == nil {
			return []string{}
		}
		return decodeString(*v)
	case []byte:
		return decodeString(string(v))
	case json.RawMessage:
		return decodeString(string(v))
	case []string:
		return compact(v)
	case []any:
		return fromValues(v)
	default:
		return []string{}
	}
}

// Encode renders tags in the form Decode reads back first.
func Encode(values []string) string {
	cleaned := compact(values)
	payload, err := json.Marshal(cleaned)
	if err != nil {
		return "[]"
	}
	return string(payload)
}

func decodeString(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "[]" || trimmed == "null" {
		return []string{}
	}

	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		if values, ok := parsed.([]any); ok {
			return fromValues(values)
		}
	}

	return compact(strings.Split(stripper.Replace(trimmed), ","))
}

func fromValues(values []any) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		text, ok := value.(string)
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}
