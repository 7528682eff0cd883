package sheet

import "time"

// DateTimeLayout is the fixed format of date/time values in a record.
const DateTimeLayout = "2006-01-02 15:04:05"

// Normalize converts v into a JSON-safe value: time.Time becomes a
// DateTimeLayout string, rows, maps and slices are converted element-wise,
// all other values pass through unchanged.
func Normalize(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(DateTimeLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Format(DateTimeLayout)
	case Row:
		return x.normalized()
	case []Row:
		out := make([]Row, len(x))
		for i, r := range x {
			out[i] = r.normalized()
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Normalize(val)
		}
		return out
	default:
		return v
	}
}

func (r Row) normalized() Row {
	values := make([]any, len(r.Values))
	for i, v := range r.Values {
		values[i] = Normalize(v)
	}
	return Row{Columns: r.Columns, Values: values}
}
