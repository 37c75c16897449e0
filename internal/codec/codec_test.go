package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	plaintext := []byte(`[` + string(bytes.Repeat([]byte(`{"id":"x","title":"compressible"},`), 50)) + `{"id":"y"}]`)

	for _, c := range []Codec{None, Gzip, Snappy, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			encoded, err := Encode(c, plaintext)
			require.NoError(t, err)

			if c == None {
				assert.Equal(t, plaintext, encoded)
			} else {
				assert.Equal(t, byte(0x00), encoded[0])
				assert.Equal(t, byte(c), encoded[1])
				assert.Less(t, len(encoded), len(plaintext))
			}

			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decoded)
		})
	}
}

func TestDecode_PlainPassthrough(t *testing.T) {
	got, err := Decode([]byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), got)

	got, err = Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecode_BadFrames(t *testing.T) {
	_, err := Decode([]byte{0x00})
	assert.Error(t, err)

	_, err = Decode([]byte{0x00, 0x7f, 'x'})
	assert.Error(t, err)

	_, err = Decode([]byte{0x00, byte(Gzip), 'n', 'o', 't'})
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	for _, name := range []string{"none", "gzip", "snappy", "zstd"} {
		c, err := Parse(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.String())
	}

	_, err := Parse("lz4")
	assert.Error(t, err)
	assert.Equal(t, "codec(9)", Codec(9).String())
}
