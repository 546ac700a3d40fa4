package fieldmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanNameStripsDecorativeSymbols(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Client 🎯", "Client"},
		{"🔥 Priority", "Priority"},
		{"Budget 💰💰", "Budget"},
		{"Due Date ⏰", "Due Date"},
		{"Plain Name", "Plain Name"},
		{"  padded  ", "padded"},
		{"Phase ➡️", "Phase"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanName(tc.raw), "raw=%q", tc.raw)
	}
}

func TestClassifyKnownField(t *testing.T) {
	m, ok := Classify("Client 🎯")
	require.True(t, ok)
	assert.Equal(t, "client", m.Column)
	assert.Equal(t, Text, m.Kind)
	assert.Equal(t, "client", m.StorageKey("Client"))
}

func TestClassifyUnknownFieldHasNoMapping(t *testing.T) {
	_, ok := Classify("Random Notes")
	assert.False(t, ok)
}

func TestClassifyBagFieldUsesCleanNameKey(t *testing.T) {
	m, ok := Classify("🔥 Priority")
	require.True(t, ok)
	assert.Empty(t, m.Column)
	assert.Equal(t, "Priority", m.StorageKey("Priority"))
}

func TestCoerceText(t *testing.T) {
	m := Mapping{Kind: Text}

	v, err := m.Coerce("Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", v)

	v, err = m.Coerce(float64(42.5))
	require.NoError(t, err)
	assert.Equal(t, "42.5", v)

	v, err = m.Coerce(true)
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	v, err = m.Coerce(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCoerceTimestamp(t *testing.T) {
	m := Mapping{Kind: Timestamp}

	v, err := m.Coerce(float64(1700000000000))
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), v)

	v, err = m.Coerce("1700000000000")
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), v)

	// Falsy inputs yield nil, not an error
	v, err = m.Coerce(float64(0))
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = m.Coerce("")
	require.NoError(t, err)
	assert.Nil(t, v)

	// Unparseable strings are the one coercion error
	_, err = m.Coerce("next tuesday")
	assert.Error(t, err)
}

func TestCoerceDecimal(t *testing.T) {
	m := Mapping{Kind: Decimal}

	v, err := m.Coerce(float64(12.75))
	require.NoError(t, err)
	assert.Equal(t, 12.75, v)

	// Strings are not parsed for decimals
	v, err = m.Coerce("12.75")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCoerceInteger(t *testing.T) {
	m := Mapping{Kind: Integer}

	v, err := m.Coerce(float64(8))
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)

	// Integer additionally parses numeric-looking strings
	v, err = m.Coerce("13")
	require.NoError(t, err)
	assert.Equal(t, int64(13), v)

	v, err = m.Coerce("thirteen")
	require.NoError(t, err)
	assert.Nil(t, v)
}
