package cipher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDerive(t *testing.T, secret string) Cipher {
	t.Helper()
	c, err := XChaCha{}.Derive([]byte(secret))
	require.NoError(t, err)
	return c
}

func TestRoundTrip(t *testing.T) {
	c := mustDerive(t, "123456")

	plaintext := []byte(`[{"id":"a"}]`)
	ct, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(ct, plaintext))

	pt, err := c.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestEncrypt_RandomNonce(t *testing.T) {
	c := mustDerive(t, "secret")

	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecrypt_SameSecretDerivesSameKey(t *testing.T) {
	ct, err := mustDerive(t, "secret").Encrypt([]byte("payload"))
	require.NoError(t, err)

	pt, err := mustDerive(t, "secret").Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), pt)
}

func TestDecrypt_Failures(t *testing.T) {
	c := mustDerive(t, "secret")
	good, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte(nil), good...)
	tampered[len(tampered)-1] ^= 0xff

	badVersion := append([]byte(nil), good...)
	badVersion[0] = 0x7f

	otherKey, err := mustDerive(t, "other").Encrypt([]byte("payload"))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("this is not a partition")},
		{"tampered", tampered},
		{"unknown version", badVersion},
		{"wrong key", otherKey},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Decrypt(tc.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestDerive_EmptySecret(t *testing.T) {
	_, err := XChaCha{}.Derive(nil)
	assert.Error(t, err)
}

func TestProviderFunc(t *testing.T) {
	var called []byte
	p := ProviderFunc(func(secret []byte) (Cipher, error) {
		called = secret
		return XChaCha{}.Derive(secret)
	})

	_, err := p.Derive([]byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pw"), called)
}
