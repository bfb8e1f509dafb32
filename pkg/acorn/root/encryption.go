package root

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/crypto/pbkdf2"
)

const pbkdf2Iterations = 100_000

// EncryptionRoot wraps AES-256-GCM, following the same Seal(nonce, ...)
// / prepend-nonce convention as the teacher's pkg/security secrets
// manager. The key is either supplied directly (32 bytes) or derived from
// a password+salt via PBKDF2-HMAC-SHA256.
type EncryptionRoot struct {
	name     string
	sequence int
	key      []byte

	ops    atomic.Int64
	errors atomic.Int64
}

// NewEncryptionRoot builds an encryption root from an explicit 32-byte
// key (recommended sequence band: 200-299).
func NewEncryptionRoot(sequence int, key []byte) (*EncryptionRoot, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption root: key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &EncryptionRoot{name: "encryption", sequence: sequence, key: key}, nil
}

// NewEncryptionRootFromPassword derives the key from password+salt via
// PBKDF2-HMAC-SHA256, rather than the teacher's plain SHA-256-of-password
// (spec calls for "key/IV derivation from password+salt"; PBKDF2 is the
// minimal upgrade that actually uses the salt and an iteration count).
func NewEncryptionRootFromPassword(sequence int, password string, salt []byte) (*EncryptionRoot, error) {
	if password == "" {
		return nil, fmt.Errorf("encryption root: password cannot be empty")
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	return NewEncryptionRoot(sequence, key)
}

func (r *EncryptionRoot) Name() string      { return r.name }
func (r *EncryptionRoot) Sequence() int     { return r.sequence }
func (r *EncryptionRoot) Signature() string { return "aes-256-gcm" }

func (r *EncryptionRoot) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (r *EncryptionRoot) OnStash(b []byte, _ *Context) ([]byte, error) {
	gcm, err := r.gcm()
	if err != nil {
		r.errors.Add(1)
		return nil, fmt.Errorf("encryption root: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		r.errors.Add(1)
		return nil, fmt.Errorf("encryption root: %w", err)
	}
	r.ops.Add(1)
	return gcm.Seal(nonce, nonce, b, nil), nil
}

func (r *EncryptionRoot) OnCrack(b []byte, _ *Context) ([]byte, error) {
	gcm, err := r.gcm()
	if err != nil {
		r.errors.Add(1)
		return nil, fmt.Errorf("encryption root: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(b) < nonceSize {
		r.errors.Add(1)
		return nil, fmt.Errorf("encryption root: ciphertext too short")
	}
	nonce, ciphertext := b[:nonceSize], b[nonceSize:]
	out, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		r.errors.Add(1)
		return nil, fmt.Errorf("encryption root: %w", err)
	}
	r.ops.Add(1)
	return out, nil
}

// Stats returns (opCount, errorCount).
func (r *EncryptionRoot) Stats() (ops, errs int64) {
	return r.ops.Load(), r.errors.Load()
}
