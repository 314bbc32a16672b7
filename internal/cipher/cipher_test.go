package cipher_test

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/cipher"
)

func randomKey(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestEnvelope_EncryptDecryptRoundTrip(t *testing.T) {
	env, err := cipher.New(randomKey(t))
	require.NoError(t, err)

	ciphertext, err := env.Encrypt("s3cr3t-value")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cr3t-value", ciphertext)

	plain, err := env.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t-value", plain)
}

func TestEnvelope_EncryptIsNondeterministic(t *testing.T) {
	env, err := cipher.New(randomKey(t))
	require.NoError(t, err)

	a, err := env.Encrypt("same-plaintext")
	require.NoError(t, err)
	b, err := env.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "fresh nonce per call should make ciphertexts differ")
}

func TestEnvelope_DecryptFailsUnderWrongKey(t *testing.T) {
	envA, err := cipher.New(randomKey(t))
	require.NoError(t, err)
	envB, err := cipher.New(randomKey(t))
	require.NoError(t, err)

	ciphertext, err := envA.Encrypt("payload")
	require.NoError(t, err)

	_, err = envB.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestEnvelope_DecryptRejectsMalformedInput(t *testing.T) {
	env, err := cipher.New(randomKey(t))
	require.NoError(t, err)

	_, err = env.Decrypt("not-valid-base64!!")
	assert.Error(t, err)

	_, err = env.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestNew_RejectsBadKeys(t *testing.T) {
	_, err := cipher.New("")
	assert.Error(t, err)

	_, err = cipher.New("not-base64!!!")
	assert.Error(t, err)

	shortKey := base64.StdEncoding.EncodeToString([]byte("too-short"))
	_, err = cipher.New(shortKey)
	assert.Error(t, err)
}
