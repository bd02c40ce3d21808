package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeOf(t *testing.T) {
	tests := []struct {
		typeName string
		want     int
		wantErr  bool
	}{
		{"u8", 1, false},
		{"byte", 1, false},
		{"i16", 2, false},
		{"uint16", 2, false},
		{"u32", 4, false},
		{"f32", 4, false},
		{"int64", 8, false},
		{"f64", 8, false},
		{"zstring", -1, false},
		{"string", -1, false},
		{"*Node", 0, true},
		{"Header", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			got, err := SizeOf(tt.typeName)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupScalar(t *testing.T) {
	s, ok := LookupScalar("int32")
	require.True(t, ok)
	assert.Equal(t, "i32", s.Name)
	assert.True(t, s.Signed)

	s, ok = LookupScalar("f64")
	require.True(t, ok)
	assert.Equal(t, "float64", s.GoType)
	assert.True(t, s.Float)

	_, ok = LookupScalar("u128")
	assert.False(t, ok)
}

func TestTypeRegistry(t *testing.T) {
	reg := NewTypeRegistry()
	reg.Register("Header", -1)
	reg.RegisterAlias("PageID", "uint64")
	reg.RegisterAlias("RootID", "PageID")

	size, err := reg.SizeOf("RootID")
	require.NoError(t, err)
	assert.Equal(t, 8, size)
	assert.Equal(t, "uint64", reg.ResolveType("RootID"))

	size, err = reg.SizeOf("Header")
	require.NoError(t, err)
	assert.Equal(t, -1, size)

	_, err = reg.SizeOf("Footer")
	assert.Error(t, err)

	// Alias loops terminate.
	reg.RegisterAlias("A", "B")
	reg.RegisterAlias("B", "A")
	_, err = reg.SizeOf("A")
	assert.Error(t, err)
}
