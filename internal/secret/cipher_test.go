package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	key1, err := GenerateKey()
	require.NoError(t, err)
	key2, err := GenerateKey()
	require.NoError(t, err)

	assert.NotEmpty(t, key1)
	assert.NotEmpty(t, key2)
	assert.NotEqual(t, key1, key2)
	assert.Greater(t, len(key1), GenerateKeyLength)
}

func TestEncryptDecryptEmpty(t *testing.T) {
	c := New([]byte("test_key"))

	encrypted, err := c.Encrypt(nil)
	require.NoError(t, err)
	assert.Empty(t, encrypted)

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Empty(t, decrypted)
}

func TestEncryptDecryptSmallData(t *testing.T) {
	c := New([]byte("test_key"))
	data := []byte("Hello, world!")

	encrypted, err := c.Encrypt(data)
	require.NoError(t, err)
	assert.Greater(t, len(encrypted), len(data))
	assert.GreaterOrEqual(t, len(encrypted), headLength)

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, data, decrypted)
}

func TestEncryptDecryptLargeData(t *testing.T) {
	c := New([]byte("test_key"))
	data := make([]byte, 1024)
	for i := range data {
		data[i] = 0x42
	}

	encrypted, err := c.Encrypt(data)
	require.NoError(t, err)
	assert.Greater(t, len(encrypted), len(data))

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, data, decrypted)
}

func TestDifferentKeysFailToDecrypt(t *testing.T) {
	data := []byte("Secret message")

	c1 := New([]byte("key1"))
	encrypted, err := c1.Encrypt(data)
	require.NoError(t, err)

	c2 := New([]byte("key2"))
	_, err = c2.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestTamperedDataFailsToDecrypt(t *testing.T) {
	c := New([]byte("test_key"))
	data := []byte("Important data")

	encrypted, err := c.Encrypt(data)
	require.NoError(t, err)
	require.Greater(t, len(encrypted), headLength+1)

	encrypted[headLength+1] ^= 0xFF

	_, err = c.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestInvalidDataLengthFailsToDecrypt(t *testing.T) {
	c := New([]byte("test_key"))

	_, err := c.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrShortCiphertext)
}

func TestRoundTripWithDifferentDataTypes(t *testing.T) {
	c := New([]byte("mixed-type-key"))
	cases := [][]byte{
		[]byte("plain ascii"),
		[]byte("unicode: 日本語 emoji 🎉"),
		{0x00, 0x01, 0x02, 0xFF, 0xFE},
		make([]byte, 4096),
	}
	for _, data := range cases {
		encrypted, err := c.Encrypt(data)
		require.NoError(t, err)
		decrypted, err := c.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, data, decrypted)
	}
}

func TestHandshakeRoundTrip(t *testing.T) {
	password := []byte("shared-secret")

	h, err := BuildHandshake(password)
	require.NoError(t, err)
	assert.Len(t, h.Nonce, nonceLength)
	assert.Len(t, h.Salt, saltLength)

	require.NoError(t, VerifyHandshake(password, h))
}

func TestHandshakeWrongPassword(t *testing.T) {
	h, err := BuildHandshake([]byte("correct-horse"))
	require.NoError(t, err)

	err = VerifyHandshake([]byte("battery-staple"), h)
	assert.ErrorIs(t, err, ErrHandshakeFailed)
}
