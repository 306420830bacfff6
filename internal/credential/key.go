package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/benaskins/latch/internal/device"
	"golang.org/x/crypto/chacha20poly1305"
)

// Key is the installation's sealing key together with the tag prefix that
// marks plaintext sealed under it.
type Key struct {
	secret [sha256.Size]byte
	prefix string
}

// Derive computes the key for an installation identifier. The secret is the
// SHA-256 digest of the identifier; the prefix is the same digest hex-encoded.
// The prefix is a marker, not a secret.
func Derive(identifier string) Key {
	sum := sha256.Sum256([]byte(identifier))
	return Key{secret: sum, prefix: hex.EncodeToString(sum[:])}
}

var installationKey = sync.OnceValue(func() Key {
	return Derive(device.Identifier())
})

// InstallationKey returns the key for this installation, derived once per process.
func InstallationKey() Key {
	return installationKey()
}

// Prefix returns the hex tag prefix.
func (k Key) Prefix() string {
	return k.prefix
}

// seal encrypts prefix||password as nonce||ciphertext||tag with a fresh nonce
// read from r.
func (k Key) seal(r io.Reader, password string) ([]byte, error) {
	aead, err := chacha20poly1305.New(k.secret[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(k.prefix)+len(password)+aead.Overhead())
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, []byte(k.prefix+password), nil), nil
}

// unseal opens a sealed value and strips the tag prefix. ok is false for
// anything that is not a value sealed under k: short or malformed input, a
// failed authentication, non-UTF-8 plaintext, or a missing prefix.
func (k Key) unseal(sealed []byte) (password string, ok bool) {
	aead, err := chacha20poly1305.New(k.secret[:])
	if err != nil {
		return "", false
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return "", false
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil || !utf8.Valid(plaintext) {
		return "", false
	}
	return strings.CutPrefix(string(plaintext), k.prefix)
}
