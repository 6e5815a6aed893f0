package actor

// Metrics is a nested plain mapping of metric names to float64 leaves or
// nested Metrics/maps. It is the shape returned by Ref.Metrics for every
// placement; JSON decoding a remote snapshot yields the same structure.
type Metrics map[string]any

// Sum element-wise adds the given snapshots. Numeric leaves add up, nested
// mappings are summed recursively, anything else is taken from the first
// snapshot that carries it.
func Sum(ms ...Metrics) Metrics {
	out := Metrics{}
	for _, m := range ms {
		for k, v := range m {
			cur, ok := out[k]
			if !ok {
				out[k] = cloneValue(v)
				continue
			}
			out[k] = addValues(cur, v)
		}
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Metrics:
		return Sum(t)
	case map[string]any:
		return Sum(Metrics(t))
	default:
		return v
	}
}

func addValues(a, b any) any {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af + bf
	}

	am, aok2 := toMap(a)
	bm, bok2 := toMap(b)
	if aok2 && bok2 {
		return Sum(am, bm)
	}
	return a
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	default:
		return 0, false
	}
}

func toMap(v any) (Metrics, bool) {
	switch t := v.(type) {
	case Metrics:
		return t, true
	case map[string]any:
		return Metrics(t), true
	default:
		return nil, false
	}
}
