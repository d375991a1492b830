package hubspot

import (
	"fmt"
	"strconv"
	"time"
)

// formatValue renders a local value the way HubSpot property values are
// sent: as strings, with timestamps in epoch milliseconds.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return strconv.FormatInt(val.UnixMilli(), 10)
	case *time.Time:
		if val == nil {
			return ""
		}
		return strconv.FormatInt(val.UnixMilli(), 10)
	case fmt.Stringer:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

func formatProperties(props map[string]any) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = formatValue(v)
	}
	return out
}

// mergeProperties returns base overlaid with extra. Neither map is changed.
func mergeProperties(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
