package remoteconfig

// Flag folds any nonzero value to 1
func Flag() Corrector {
	return func(v int64, _ Lookup) (int64, bool) {
		switch v {
		case 0, 1:
			return v, false
		default:
			return 1, true
		}
	}
}

// ClampMin raises values below min to min
func ClampMin(min int64) Corrector {
	return func(v int64, _ Lookup) (int64, bool) {
		if v < min {
			return min, true
		}
		return v, false
	}
}

// ClampRange pins values to the nearest bound of [min, max]
func ClampRange(min, max int64) Corrector {
	return func(v int64, _ Lookup) (int64, bool) {
		if v < min {
			return min, true
		}
		if v > max {
			return max, true
		}
		return v, false
	}
}

// Replace substitutes fixed values outside [min, max]: below min becomes
// low, above max becomes high. Used where the safe value is not the bound.
func Replace(min, max, low, high int64) Corrector {
	return func(v int64, _ Lookup) (int64, bool) {
		if v < min {
			return low, true
		}
		if v > max {
			return high, true
		}
		return v, false
	}
}

// countDownCorrector falls back to ads_interval when countDown is unset on
// the server, then to def, and finally clamps to [5, 3600].
func countDownCorrector(def int64) Corrector {
	clamp := ClampRange(5, 3600)
	return func(v int64, payload Lookup) (int64, bool) {
		corrected := false
		if v <= 0 {
			corrected = true
			v = def
			if fallback, ok := payload(KeyAdsInterval); ok && fallback > 0 {
				v = fallback
			}
		}
		v, clamped := clamp(v, payload)
		return v, corrected || clamped
	}
}
