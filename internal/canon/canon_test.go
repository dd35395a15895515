package canon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveUUID_Stable(t *testing.T) {
	a := DeriveUUID("topic", "t1")
	b := DeriveUUID("topic", "t1")
	assert.Equal(t, a, b, "same seed must derive the same uuid")
	assert.True(t, IsUUID(a))

	assert.NotEqual(t, a, DeriveUUID("topic", "t2"))
	assert.NotEqual(t, a, DeriveUUID("message", "t1"), "kind participates in the seed")
}

func TestNormalizeUUID(t *testing.T) {
	valid := "0950e2dc-9bd5-4801-afa3-aa887aa36b4e"
	assert.Equal(t, valid, NormalizeUUID(valid, "assistant", valid), "valid uuids pass through")
	assert.Equal(t, valid, NormalizeUUID(" "+valid+" ", "assistant", valid), "whitespace is trimmed")

	derived := NormalizeUUID("default", "assistant", "default")
	require.True(t, IsUUID(derived))
	assert.Equal(t, DeriveUUID("assistant", "default"), derived)
	assert.Equal(t, DeriveUUID("assistant"), NormalizeUUID("", "assistant"))
}

func TestIsUUID(t *testing.T) {
	assert.True(t, IsUUID("0950e2dc-9bd5-4801-afa3-aa887aa36b4e"))
	assert.False(t, IsUUID("default"))
	assert.False(t, IsUUID(""))
}

func TestMustJSON_CanonicalOrderAndEscaping(t *testing.T) {
	got := MustJSON(map[string]any{"b": 1, "a": map[string]any{"z": true, "y": "<tag>"}})
	assert.Equal(t, `{"a":{"y":"\u003ctag\u003e","z":true},"b":1}`, got)
}

func TestPrettyJSON_Indented(t *testing.T) {
	got := PrettyJSON(map[string]any{"k": "v"})
	assert.True(t, strings.Contains(got, "\n  \"k\": \"v\""), "expected two-space indent, got=%q", got)
}
