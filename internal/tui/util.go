package tui

import (
	"encoding/json"
	"fmt"
	"sort"
)

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// formatValue renders an attribute value for the schema table and the
// inspect popup.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	case float32:
		return fmt.Sprintf("%g", t)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(t))
	case fmt.Stringer:
		return t.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	default:
		bs, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(bs)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
