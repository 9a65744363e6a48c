package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionManager_RoundTrip(t *testing.T) {
	m, err := NewEncryptionManager("correct horse battery staple", []byte("device-1"))
	require.NoError(t, err)

	sealed, err := m.Encrypt([]byte(`{"access_token":"abc"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "abc")

	plain, err := m.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"abc"}`, string(plain))
}

func TestEncryptionManager_NoncesDiffer(t *testing.T) {
	m, err := NewEncryptionManager("secret", nil)
	require.NoError(t, err)

	a, err := m.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := m.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptionManager_KeyDependsOnPassphraseAndSalt(t *testing.T) {
	m, err := NewEncryptionManager("secret", []byte("device-1"))
	require.NoError(t, err)
	sealed, err := m.Encrypt([]byte("payload"))
	require.NoError(t, err)

	for name, other := range map[string]struct {
		pass string
		salt []byte
	}{
		"other passphrase": {"Secret", []byte("device-1")},
		"other salt":       {"secret", []byte("device-2")},
	} {
		t.Run(name, func(t *testing.T) {
			o, err := NewEncryptionManager(other.pass, other.salt)
			require.NoError(t, err)
			_, err = o.Decrypt(sealed)
			assert.ErrorContains(t, err, "decryption failed")
		})
	}

	same, err := NewEncryptionManager("secret", []byte("device-1"))
	require.NoError(t, err)
	plain, err := same.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plain))
}

func TestEncryptionManager_Errors(t *testing.T) {
	_, err := NewEncryptionManager("", nil)
	assert.Error(t, err)

	m, err := NewEncryptionManager("secret", nil)
	require.NoError(t, err)
	_, err = m.Decrypt([]byte("short"))
	assert.ErrorContains(t, err, "too short")
}
