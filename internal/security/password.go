package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultIterations = 100000
	saltBytes         = 16
	keyLen            = sha256.Size
)

// PasswordHasher derives PBKDF2-SHA256 keys. Stored values have the form
// "<hex salt>:<hex key>"; the hex salt string itself is the KDF salt.
type PasswordHasher struct {
	iterations int
}

func NewPasswordHasher(iterations int) *PasswordHasher {
	if iterations < DefaultIterations {
		iterations = DefaultIterations
	}
	return &PasswordHasher{iterations: iterations}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	key := pbkdf2.Key([]byte(password), []byte(salt), h.iterations, keyLen, sha256.New)
	return salt + ":" + hex.EncodeToString(key), nil
}

// Verify never fails loudly: a malformed stored value simply does not match.
func (h *PasswordHasher) Verify(password, stored string) bool {
	salt, encoded, ok := strings.Cut(stored, ":")
	if !ok || salt == "" || strings.Contains(encoded, ":") {
		return false
	}
	want, err := hex.DecodeString(encoded)
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(password), []byte(salt), h.iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(want, got) == 1
}
