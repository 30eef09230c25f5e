package objstream

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestParseConcatenated(t *testing.T) {
	parts := []string{
		`{"say":"hello"}`,
		`{"thoughts":{"focus":"greet","plan":"- a\n- b"},"say":"hi"}`,
		`{"n":1,"list":[1,2,{"x":true}]}`,
	}

	var input string
	var want []map[string]any
	for _, p := range parts {
		input += p
		want = append(want, mustDecode(t, p))
	}

	got := Parse(input)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmpty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("   \n\t"))
	assert.Len(t, Parse("{}"), 1)
}

func TestParseSkipsInvalidFragment(t *testing.T) {
	got := Parse(`{"a":1}{not json}{"b":2}`)
	require.Len(t, got, 2)
	assert.Equal(t, float64(1), got[0]["a"])
	assert.Equal(t, float64(2), got[1]["b"])
}

func TestParseStripsLineBreaks(t *testing.T) {
	got := Parse("{\n  \"say\": \"multi\r\nline\",\r  \"n\": 3\n}")
	require.Len(t, got, 1)
	assert.Equal(t, "multiline", got[0]["say"])
	assert.Equal(t, float64(3), got[0]["n"])
}

func TestParseDropsUnbalancedTail(t *testing.T) {
	got := Parse(`{"a":1}{"b":{"c":2}`)
	require.Len(t, got, 1)
	assert.Equal(t, float64(1), got[0]["a"])
}

func TestParseIgnoresSurroundingText(t *testing.T) {
	got := Parse(`Sure! Here you go: {"say":"ok"} -- end`)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0]["say"])
}

func TestParseBracesInsideStringsAreStructural(t *testing.T) {
	// The closing brace inside the string ends the candidate early, so the
	// object is split into two unparseable pieces.
	got := Parse(`{"say":"a } b"}`)
	assert.Empty(t, got)

	// Balanced braces inside strings happen to survive.
	got = Parse(`{"say":"{ok}"}`)
	require.Len(t, got, 1)
	assert.Equal(t, "{ok}", got[0]["say"])
}

func TestFirst(t *testing.T) {
	assert.Nil(t, First("garbage"))
	assert.Equal(t, "x", First(`{"say":"x"}{"say":"y"}`)["say"])
}
