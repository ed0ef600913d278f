package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetString(t *testing.T) {
	m := map[string]any{"title": "hello"}
	s, ok := GetString(m, "title")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = GetString(m, "missing")
	assert.False(t, ok)
}

func TestGetMapHandlesBothMapShapes(t *testing.T) {
	m1 := map[string]any{"nested": map[string]any{"a": 1}}
	nested, ok := GetMap(m1, "nested")
	assert.True(t, ok)
	assert.Equal(t, 1, nested["a"])

	m2 := map[string]any{"nested": map[string]interface{}{"b": 2}}
	nested2, ok := GetMap(m2, "nested")
	assert.True(t, ok)
	assert.Equal(t, 2, nested2["b"])
}

func TestGetStringSliceSkipsNonStrings(t *testing.T) {
	m := map[string]any{"tags": []any{"go", 1, "api"}}
	assert.Equal(t, []string{"go", "api"}, GetStringSlice(m, "tags"))
}

func TestParseTimeToMsAcceptsRFC3339AndNumeric(t *testing.T) {
	ms, ok := ParseTimeToMs("2024-01-01T00:00:00Z")
	assert.True(t, ok)
	assert.Equal(t, RFC3339(ms)[:4], "2024")

	ms2, ok := ParseTimeToMs("1700000000000")
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000000), ms2)

	_, ok = ParseTimeToMs("")
	assert.False(t, ok)
}
