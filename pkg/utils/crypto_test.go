package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	sealed, err := Encrypt([]byte(`{"access_token":"abc"}`), key)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "abc")

	plain, err := Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"abc"}`, plain)
}

func TestDecrypt_WrongKey(t *testing.T) {
	sealed, err := Encrypt([]byte("secret"), []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	_, err = Decrypt(sealed, []byte("fedcba9876543210fedcba9876543210"))
	assert.Error(t, err)
}

func TestDecrypt_TooShort(t *testing.T) {
	_, err := Decrypt("AAEC", []byte("0123456789abcdef0123456789abcdef"))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}
