package signal

import "math"

// A Record holds decoded signal values by signal name.
//
// Values are bool for 1-bit signals, string labels for enumerated signals,
// float64 for float signals, int64 for signed and uint64 for unsigned integers.
type Record map[string]interface{}

// Bool returns a boolean signal, false when absent.
func (record Record) Bool(name string) bool {
	v, _ := record[name].(bool)
	return v
}

// Label returns an enumerated signal, "" when absent.
func (record Record) Label(name string) string {
	v, _ := record[name].(string)
	return v
}

// Float returns a numeric signal as float64.
func (record Record) Float(name string) float64 {
	if v, ok := toFloat64(record[name]); ok {
		return v
	}
	return 0
}

// Uint returns a numeric signal as uint64.
func (record Record) Uint(name string) uint64 {
	if v, ok := toUint64(record[name]); ok {
		return v
	}
	return 0
}

// Int returns a numeric signal as int64.
func (record Record) Int(name string) int64 {
	if v, ok := toInt64(record[name]); ok {
		return v
	}
	return 0
}

// Raw holds the masked, unconverted value of every signal.
type Raw map[string]uint64

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	if u, ok := toUint64(v); ok {
		return float64(u), true
	}
	return 0, false
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) <= 1<<63-1 {
			return int64(n), true
		}
	case uint64:
		if n <= 1<<63-1 {
			return int64(n), true
		}
	case float64:
		if n >= math.MinInt64 && n < math.MaxInt64 && n == math.Trunc(n) {
			return int64(n), true
		}
	case float32:
		return toInt64(float64(n))
	}
	return 0, false
}

func toUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	if i, ok := toInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}
