package fts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// extractField resolves a dotted path against a document and renders the
// result as index text: missing values and nulls become the empty string,
// scalars are stringified, objects and arrays are JSON-stringified.
func extractField(value any, path string) string {
	current := value
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[segment]
		if !ok {
			return ""
		}
	}
	return stringify(current)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}
