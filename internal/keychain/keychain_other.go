//go:build !darwin

package keychain

// NewSystemBackend returns a MemoryBackend on non-darwin platforms.
// The macOS Keychain is not available outside of macOS; records are held in
// memory only and will not persist across restarts. Use the keyring or sqlite
// backend for persistence.
func NewSystemBackend() Backend {
	return NewMemoryBackend()
}
