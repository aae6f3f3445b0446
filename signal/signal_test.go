package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  MessageSpec
	}{
		{"payload too long", MessageSpec{Name: "m", Length: 9}},
		{"command id too large", MessageSpec{Name: "m", CommandID: 32}},
		{"signal past payload", MessageSpec{Name: "m", Length: 2, Signals: []Spec{{Name: "a", StartBit: 8, Length: 9}}}},
		{"zero length", MessageSpec{Name: "m", Length: 2, Signals: []Spec{{Name: "a"}}}},
		{"narrow float", MessageSpec{Name: "m", Length: 2, Signals: []Spec{{Name: "a", Length: 16, Kind: Float}}}},
		{"duplicate", MessageSpec{Name: "m", Length: 2, Signals: []Spec{{Name: "a", Length: 1}, {Name: "a", StartBit: 1, Length: 1}}}},
		{"big endian past payload", MessageSpec{Name: "m", Length: 1, Signals: []Spec{{Name: "a", StartBit: 3, Length: 8, ByteOrder: BigEndian}}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Error(t, test.msg.Validate())
		})
	}
}

func TestCatalog(t *testing.T) {
	a := &MessageSpec{CommandID: 5, Name: "A", Length: 1}
	b := &MessageSpec{CommandID: 2, Name: "B", Length: 1}

	catalog, err := NewCatalog(16, 2, a, b)
	require.NoError(t, err)
	assert.Equal(t, []*MessageSpec{b, a}, catalog.Messages())

	msg, ok := catalog.MessageByName("A")
	require.True(t, ok)
	assert.Same(t, a, msg)

	_, ok = catalog.Message(7)
	assert.False(t, ok)
}

func TestCatalogLayout(t *testing.T) {
	_, err := NewCatalog(16, 3)
	assert.Error(t, err)

	_, err = NewCatalog(8, 4, &MessageSpec{CommandID: 8, Name: "A"})
	assert.Error(t, err)

	_, err = NewCatalog(8, 4, &MessageSpec{CommandID: 1, Name: "A"}, &MessageSpec{CommandID: 1, Name: "B"})
	assert.Error(t, err)
}

func TestEnum(t *testing.T) {
	enum := NewEnum(map[uint64]string{3: "C", 1: "A"})
	assert.Equal(t, []uint64{1, 3}, enum.Values())
	assert.Equal(t, 2, enum.Len())

	label, ok := enum.Label(3)
	assert.True(t, ok)
	assert.Equal(t, "C", label)

	_, ok = enum.Value("B")
	assert.False(t, ok)
}
