package conflict

// Column values come from two sources: typed payloads (string, int64,
// float64, nil) and database scans (which may add []byte and other integer
// widths). Comparison normalises both sides first.

func equalValue(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum || bNum {
		if !aNum {
			ai, ok := a.(int64)
			if !ok {
				return false
			}
			af = float64(ai)
		}
		if !bNum {
			bi, ok := b.(int64)
			if !ok {
				return false
			}
			bf = float64(bi)
		}
		return af == bf
	}
	return a == b
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func truthy(v any) bool {
	switch x := normalize(v).(type) {
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x == "1" || x == "true"
	default:
		return false
	}
}
