package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	b, err := MarshalCanonical(map[string]any{"zebra": 1, "apple": 2, "Mango": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"Mango":3,"apple":2,"zebra":1}`, string(b))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	b, err := MarshalCanonical("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(b))
}

func TestMarshalCanonical_RejectsNaN(t *testing.T) {
	_, err := MarshalCanonical(math.NaN())
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": math.Inf(1)})
	assert.Error(t, err)
}

func TestMarshalRecords(t *testing.T) {
	recs := []Record{
		{"id": "a", "amount": 1, "tags": []string{"x"}},
		{"id": "b", "amount": 2.5, "note": nil},
	}

	b, err := MarshalRecords(recs)
	require.NoError(t, err)
	assert.Equal(t, `[{"amount":1,"id":"a","tags":["x"]},{"amount":2.5,"id":"b","note":null}]`, string(b))
}

func TestMarshalRecords_Empty(t *testing.T) {
	b, err := MarshalRecords(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(b))
}

func TestUnmarshalRecords(t *testing.T) {
	recs, err := UnmarshalRecords([]byte(`[{"id":"a","amount":3,"ratio":0.5,"ok":true,"ids":["x","y"]}]`))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "a", rec["id"])
	assert.Equal(t, int64(3), rec["amount"])
	assert.Equal(t, 0.5, rec["ratio"])
	assert.Equal(t, true, rec["ok"])
	assert.Equal(t, []any{"x", "y"}, rec["ids"])
}

func TestUnmarshalRecords_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `garbage`},
		{"object not array", `{"id":"a"}`},
		{"null element", `[null]`},
		{"scalar element", `[1]`},
		{"trailing data", `[] []`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := UnmarshalRecords([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	orig := []Record{
		{"id": "1", "name": "Priority", "amount": 10, "price": 9.99, "author": "a-1"},
		{"id": "2", "name": "Other", "amount": -3, "price": nil, "flags": map[string]any{"x": true}},
	}

	b, err := MarshalRecords(orig)
	require.NoError(t, err)

	decoded, err := UnmarshalRecords(b)
	require.NoError(t, err)
	require.Len(t, decoded, len(orig))

	for i := range orig {
		for k, v := range orig[i] {
			assert.True(t, Equal(v, decoded[i][k]), "record %d field %q", i, k)
		}
	}
}
