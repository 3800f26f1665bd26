package envelope_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backupvault/core/internal/envelope"
)

func TestMain(m *testing.M) {
	if err := envelope.Init("a-test-secret-that-is-long-enough"); err != nil {
		panic(err)
	}
	m.Run()
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, plaintext := range []string{"", "hunter2", "s3-secret-access-key-value-1234567890"} {
		token, err := envelope.Encrypt(plaintext)
		require.NoError(t, err)

		got, err := envelope.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptNonceFreshness(t *testing.T) {
	a, err := envelope.Encrypt("same-plaintext")
	require.NoError(t, err)
	b, err := envelope.Encrypt("same-plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "two encryptions of the same plaintext must not produce the same token")
}

func TestDecryptRejectsTamperedTag(t *testing.T) {
	token, err := envelope.Encrypt("sensitive")
	require.NoError(t, err)

	parts := []byte(token)
	// Flip a character inside the tag segment (second ":"-delimited field).
	idx := -1
	seen := 0
	for i, c := range parts {
		if c == ':' {
			seen++
			if seen == 1 {
				idx = i + 1
				break
			}
		}
	}
	require.Greater(t, idx, 0)
	if parts[idx] == '0' {
		parts[idx] = '1'
	} else {
		parts[idx] = '0'
	}

	_, err = envelope.Decrypt(string(parts))
	assert.Error(t, err)
}

func TestDecryptRejectsMalformedToken(t *testing.T) {
	for _, bad := range []string{"", "not-a-token", "aa:bb", "zz:zz:zz"} {
		_, err := envelope.Decrypt(bad)
		assert.Error(t, err, "token %q should be rejected", bad)
	}
}

func TestIsMasked(t *testing.T) {
	assert.True(t, envelope.IsMasked("********"))
	assert.True(t, envelope.IsMasked("abcd****"))
	assert.False(t, envelope.IsMasked("abcdefgh"))
	assert.False(t, envelope.IsMasked(""))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********", envelope.Mask("ab"))
	assert.Equal(t, "********", envelope.Mask("abcd"))
	assert.Equal(t, "abcd****", envelope.Mask("abcdef"))
}

func TestEncryptFieldsIdempotent(t *testing.T) {
	obj := map[string]string{"access_key_id": "AKIA...", "region": "us-east-1"}
	names := []string{"access_key_id", "secret_access_key"}

	once, err := envelope.EncryptFields(obj, names)
	require.NoError(t, err)

	twice, err := envelope.EncryptFields(once, names)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestEncryptFieldsSkipsMasked(t *testing.T) {
	obj := map[string]string{"secret_access_key": "abcd****"}
	out, err := envelope.EncryptFields(obj, []string{"secret_access_key"})
	require.NoError(t, err)
	assert.Equal(t, "abcd****", out["secret_access_key"])
}

func TestDecryptFieldsLeavesPlainValuesAlone(t *testing.T) {
	obj := map[string]string{"region": "auto"}
	out, err := envelope.DecryptFields(obj, []string{"region"})
	require.NoError(t, err)
	assert.Equal(t, "auto", out["region"])
}

func TestDecryptFieldsPropagatesFailure(t *testing.T) {
	// Well-formed token shape (12-byte nonce, 16-byte tag) whose tag does not
	// authenticate, so DecryptFields treats it as encrypted and must fail.
	obj := map[string]string{"password": "000000000000000000000000:00000000000000000000000000000000:deadbeef"}
	_, err := envelope.DecryptFields(obj, []string{"password"})
	assert.Error(t, err)
}

func TestMergeMaskedPreservesCiphertextOnMaskedUpdate(t *testing.T) {
	prev, err := envelope.Encrypt("original-secret")
	require.NoError(t, err)

	assert.Equal(t, prev, envelope.MergeMasked(prev, "abcd****"))
	assert.Equal(t, "new-plaintext", envelope.MergeMasked(prev, "new-plaintext"))
}
