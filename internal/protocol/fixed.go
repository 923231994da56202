package protocol

import (
	"bytes"
	"math"
	"strconv"
)

// Fixed is a number written with a fixed count of decimals. NaN and the
// infinities are written as null.
type Fixed struct {
	V    float64
	Prec int
}

func (f Fixed) MarshalJSON() ([]byte, error) {
	if math.IsNaN(f.V) || math.IsInf(f.V, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f.V, 'f', f.Prec, 64), nil
}

// UnmarshalJSON reads any JSON number; null becomes NaN.
func (f *Fixed) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		f.V = math.NaN()
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	f.V = v
	if i := bytes.IndexByte(b, '.'); i >= 0 {
		f.Prec = len(b) - i - 1
	}
	return nil
}

// F1 is used for temperatures and percentages.
func F1[T ~float32 | ~float64](v T) Fixed { return Fixed{V: float64(v), Prec: 1} }

// F2 is used for power.
func F2[T ~float32 | ~float64](v T) Fixed { return Fixed{V: float64(v), Prec: 2} }

// F3 is used for voltage, current and the meters.
func F3[T ~float32 | ~float64](v T) Fixed { return Fixed{V: float64(v), Prec: 3} }
