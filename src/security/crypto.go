package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrDecryptFailed = errors.New("failed to decrypt value")

func loadKey() (*[32]byte, error) {
	config := GetConfig()

	raw, err := base64.StdEncoding.DecodeString(config.BrokerageCRKey)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(raw))
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// EncryptString seals a credential for storage. The random nonce is
// prepended to the ciphertext and the whole blob base64-encoded.
func EncryptString(plain string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}

	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a credential sealed by EncryptString.
func DecryptString(encoded string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid encrypted value: %w", err)
	}
	if len(blob) < 24 {
		return "", ErrDecryptFailed
	}

	var nonce [24]byte
	copy(nonce[:], blob[:24])

	plain, ok := secretbox.Open(nil, blob[24:], &nonce, key)
	if !ok {
		return "", ErrDecryptFailed
	}

	return string(plain), nil
}
