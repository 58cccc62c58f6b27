package repository

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1d, TF1wk:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1wk }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// IsValidField returns true if f is a supported series field.
func IsValidField(f Field) bool {
	switch f {
	case FieldClose, FieldReturn, FieldLogReturn, FieldVolume:
		return true
	default:
		return false
	}
}

// NormalizeField converts raw string to a valid field, defaulting to returns.
func NormalizeField(s string) Field {
	f := Field(s)
	if IsValidField(f) {
		return f
	}
	return FieldReturn
}
