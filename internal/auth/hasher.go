package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Hasher names accepted by NewHasher.
const (
	HasherSHA256   = "sha256"
	HasherArgon2id = "argon2id"
)

// Hasher derives the stored password hash from a password and a salt.
type Hasher interface {
	Hash(password, salt string) string
	Verify(password, salt, expected string) bool
}

// NewHasher returns the hasher registered under name.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", HasherSHA256:
		return SHA256Hasher{}, nil
	case HasherArgon2id:
		return DefaultArgon2Hasher(), nil
	default:
		return nil, fmt.Errorf("auth: unknown hasher %q", name)
	}
}

// SHA256Hasher computes hex(sha256(password + salt)), the format existing
// state files already hold.
type SHA256Hasher struct{}

// Hash implements Hasher.
func (SHA256Hasher) Hash(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// Verify implements Hasher.
func (h SHA256Hasher) Verify(password, salt, expected string) bool {
	return constantTimeEqual(h.Hash(password, salt), expected)
}

// Argon2Hasher derives the hash with argon2id.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Hasher returns interactive-login parameters.
func DefaultArgon2Hasher() Argon2Hasher {
	return Argon2Hasher{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32}
}

// Hash implements Hasher.
func (h Argon2Hasher) Hash(password, salt string) string {
	key := argon2.IDKey([]byte(password), []byte(salt), h.Time, h.Memory, h.Threads, h.KeyLen)
	return hex.EncodeToString(key)
}

// Verify implements Hasher.
func (h Argon2Hasher) Verify(password, salt, expected string) bool {
	return constantTimeEqual(h.Hash(password, salt), expected)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
