// Package ieee754 converts between IEEE-754 binary32 words and float64 values.
//
// Values travel over the bus as 32-bit words whenever the receiving side does not
// know the field type in advance (endpoint values, float signals). Conversions use
// the native bit reinterpretation, so normals, zeros, infinities and NaN match the
// binary32 layout bit for bit and subnormal magnitudes encode as true subnormals.
package ieee754

import "math"

const (
	PositiveInfinity uint32 = 0x7F800000
	NegativeInfinity uint32 = 0xFF800000
	QuietNaN         uint32 = 0x7FC00000
	PositiveZero     uint32 = 0x00000000
	NegativeZero     uint32 = 0x80000000

	MaskSign        uint32 = 0x80000000
	MaskExponent    uint32 = 0x7F800000
	MaskSignificand uint32 = 0x007FFFFF
)

// overflow is the smallest magnitude rounding to infinity: MaxFloat32 plus half
// an ulp, where the tie rounds to the even infinity encoding.
const overflow = 0x1p128 - 0x1p103

// Decode returns the value held by a binary32 word.
func Decode(word uint32) float64 {
	return float64(math.Float32frombits(word))
}

// Encode returns the binary32 word for v, rounded to nearest.
// Every NaN encodes as QuietNaN; magnitudes beyond the binary32 range encode as
// the matching infinity.
func Encode(v float64) uint32 {
	switch {
	case math.IsNaN(v):
		return QuietNaN
	case v >= overflow:
		return PositiveInfinity
	case v <= -overflow:
		return NegativeInfinity
	}

	return math.Float32bits(float32(v))
}

// IsSubnormal reports whether word holds a non-zero value with a zero exponent field.
func IsSubnormal(word uint32) bool {
	return word&MaskExponent == 0 && word&MaskSignificand != 0
}
