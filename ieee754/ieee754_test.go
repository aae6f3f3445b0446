package ieee754

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiterals(t *testing.T) {
	assert.Equal(t, uint32(0x3F800000), Encode(1.0))
	assert.Equal(t, 1.0, Decode(0x3F800000))
	assert.Equal(t, uint32(0xBF800000), Encode(-1.0))
	assert.True(t, math.IsInf(Decode(0x7F800000), 1))
	assert.True(t, math.IsInf(Decode(0xFF800000), -1))
	assert.True(t, math.IsNaN(Decode(0x7FC00000)))
}

func TestSpecialValues(t *testing.T) {
	assert.Equal(t, PositiveInfinity, Encode(math.Inf(1)))
	assert.Equal(t, NegativeInfinity, Encode(math.Inf(-1)))
	assert.Equal(t, QuietNaN, Encode(math.NaN()))
	assert.Equal(t, PositiveZero, Encode(0))
	assert.Equal(t, NegativeZero, Encode(math.Copysign(0, -1)))
	assert.True(t, math.Signbit(Decode(NegativeZero)))

	// Overflowing magnitudes clamp to the infinity encoding.
	assert.Equal(t, PositiveInfinity, Encode(1e39))
	assert.Equal(t, NegativeInfinity, Encode(-1e39))
}

func TestOverflowRounding(t *testing.T) {
	ulp := math.Pow(2, 104)

	// Within half an ulp above the largest finite value rounds down to it.
	assert.Equal(t, uint32(0x7F7FFFFF), Encode(math.MaxFloat32))
	assert.Equal(t, uint32(0x7F7FFFFF), Encode(math.MaxFloat32+0.25*ulp))
	assert.Equal(t, uint32(0xFF7FFFFF), Encode(-math.MaxFloat32-0.25*ulp))

	// Half an ulp ties to the even encoding, which is infinity.
	assert.Equal(t, PositiveInfinity, Encode(math.MaxFloat32+0.5*ulp))
	assert.Equal(t, NegativeInfinity, Encode(-math.MaxFloat32-0.5*ulp))
}

func TestSubnormals(t *testing.T) {
	smallest := Decode(0x00000001)
	assert.Equal(t, math.Pow(2, -149), smallest)
	assert.Equal(t, uint32(0x00000001), Encode(smallest))

	word := Encode(1e-40)
	require.True(t, IsSubnormal(word))
	assert.InDelta(t, 1e-40, Decode(word), math.Pow(2, -149))

	assert.False(t, IsSubnormal(0x3F800000))
	assert.False(t, IsSubnormal(PositiveZero))
}

func TestNormalRoundTrip(t *testing.T) {
	for _, v := range []float64{0.5, -2.25, 3.1415927410125732, 1e-30, 6.5e20, -123456.75} {
		assert.Equal(t, float64(float32(v)), Decode(Encode(v)), "value %v", v)
	}
}
