// Package envelope implements authenticated encryption for
// sensitive fields that cross the API <-> worker boundary through the
// database (credential provider configs, source passwords, destination
// credentials).
//
// Tokens are self-describing: a random per-message nonce, the AEAD
// authentication tag, and the ciphertext, rendered as three hex segments
// joined by ":" — see Encrypt for the exact layout. The AES-256 key is
// derived once per process from ENCRYPTION_SECRET via PBKDF2 and cached for
// the process lifetime, the same "derive once, cache, read-only after" shape
// the teacher uses for its package-level AES key (internal/db/encrypt.go),
// adapted here to a proper KDF input instead of a raw zero-padded secret.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const (
	keyLen        = 32 // AES-256
	nonceLen      = 12 // AES-GCM standard nonce size
	tagLen        = 16 // AES-GCM authentication tag size
	kdfIterations = 100_000
)

// kdfSalt is fixed rather than random-per-process: the key must be
// reproducible across restarts of the same deployment from ENCRYPTION_SECRET
// alone (there is no separate place to persist a random salt). Per-message
// security comes from the nonce, not the salt.
var kdfSalt = []byte("backupvault-core-secret-envelope-v1")

// ErrNotInitialized is returned by Encrypt/Decrypt when no process secret has
// been installed via Init.
var ErrNotInitialized = errors.New("envelope: not initialized, call envelope.Init first")

// ErrMalformedToken is returned by Decrypt when the token does not match the
// "hex(iv):hex(tag):hex(ciphertext)" format or any segment has the wrong length.
var ErrMalformedToken = errors.New("envelope: malformed token")

var (
	mu  sync.RWMutex
	key []byte
)

// Init derives and caches the process-wide AES-256 key from secret via
// PBKDF2-HMAC-SHA3-256 with a fixed iteration count. secret should be at
// least 32 characters (ENCRYPTION_SECRET, see spec §6); shorter secrets are
// accepted but produce a weaker key. Safe to call once at startup; later
// calls replace the cached key, which is useful for key-rotation tests.
func Init(secret string) error {
	if secret == "" {
		return errors.New("envelope: secret must not be empty")
	}
	derived := pbkdf2.Key([]byte(secret), kdfSalt, kdfIterations, keyLen, sha3.New256)
	mu.Lock()
	key = derived
	mu.Unlock()
	return nil
}

// Reset clears the cached key. Exists for test isolation between processes
// that exercise key rotation; production code should not call this.
func Reset() {
	mu.Lock()
	key = nil
	mu.Unlock()
}

func currentKey() ([]byte, error) {
	mu.RLock()
	defer mu.RUnlock()
	if key == nil {
		return nil, ErrNotInitialized
	}
	return key, nil
}

// Encrypt seals plaintext into a self-describing token
// "hex(nonce):hex(tag):hex(ciphertext)". A fresh random nonce is generated
// on every call, so encrypting the same plaintext twice never yields the
// same token.
func Encrypt(plaintext string) (string, error) {
	k, err := currentKey()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(k)
	if err != nil {
		return "", fmt.Errorf("envelope: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return "", fmt.Errorf("envelope: new gcm: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("envelope: generate nonce: %w", err)
	}

	// Seal appends ciphertext||tag. Split them so the wire format carries the
	// tag as its own segment per spec §6.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt opens a token produced by Encrypt. It fails loudly — returning an
// error, never a zero-value substitute — on tag mismatch, malformed
// structure, or wrong-length segments.
func Decrypt(token string) (string, error) {
	k, err := currentKey()
	if err != nil {
		return "", err
	}

	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", ErrMalformedToken
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceLen {
		return "", fmt.Errorf("%w: bad nonce segment", ErrMalformedToken)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLen {
		return "", fmt.Errorf("%w: bad tag segment", ErrMalformedToken)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext segment", ErrMalformedToken)
	}

	block, err := aes.NewCipher(k)
	if err != nil {
		return "", fmt.Errorf("envelope: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return "", fmt.Errorf("envelope: new gcm: %w", err)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("envelope: authentication failed: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether s looks like a token produced by Encrypt
// (three ":"-separated hex segments of the expected lengths). It does not
// attempt decryption.
func IsEncrypted(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return false
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceLen {
		return false
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLen {
		return false
	}
	if _, err := hex.DecodeString(parts[2]); err != nil {
		return false
	}
	return true
}

// IsMasked reports whether s is a display-only placeholder: the literal
// "********", or any string ending in "****" (a first4+"****" mask).
func IsMasked(s string) bool {
	if s == "********" {
		return true
	}
	return strings.HasSuffix(s, "****") && s != ""
}

// Mask renders a display-only placeholder for a sensitive plaintext value:
// the first 4 characters followed by "****", or "********" for values of
// length <= 4 (so the mask never leaks the full short value).
func Mask(plaintext string) string {
	if len(plaintext) <= 4 {
		return "********"
	}
	return plaintext[:4] + "****"
}

// EncryptFields walks obj (a map of field name -> current string value) and
// replaces each field named in names with its encrypted token, except fields
// whose value is already encrypted or masked, which are left untouched. This
// makes EncryptFields idempotent and safe to call on a partially-updated
// object coming from an API layer that may submit masked values back.
func EncryptFields(obj map[string]string, names []string) (map[string]string, error) {
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, name := range names {
		v, ok := out[name]
		if !ok || v == "" {
			continue
		}
		if IsEncrypted(v) || IsMasked(v) {
			continue
		}
		token, err := Encrypt(v)
		if err != nil {
			return nil, fmt.Errorf("envelope: encrypt field %q: %w", name, err)
		}
		out[name] = token
	}
	return out, nil
}

// DecryptFields walks obj and replaces each field named in names with its
// decrypted plaintext. Fields that are not encrypted (plain values) are left
// untouched. A decryption failure on any named field propagates immediately —
// DecryptFailure never substitutes plaintext or a default.
func DecryptFields(obj map[string]string, names []string) (map[string]string, error) {
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, name := range names {
		v, ok := out[name]
		if !ok || v == "" {
			continue
		}
		if !IsEncrypted(v) {
			continue
		}
		plain, err := Decrypt(v)
		if err != nil {
			return nil, fmt.Errorf("envelope: decrypt field %q: %w", name, err)
		}
		out[name] = plain
	}
	return out, nil
}

// MergeMasked returns the value to persist for a field update: if newValue
// IsMasked, the previous ciphertext is preserved unchanged; otherwise
// newValue is returned as-is (the caller is expected to then run it through
// EncryptFields).
func MergeMasked(previous, newValue string) string {
	if IsMasked(newValue) {
		return previous
	}
	return newValue
}
