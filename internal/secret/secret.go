// Package secret encrypts and decrypts the router password stored in configuration.
//
// Current format: "v2:" + base64(salt || nonce || AES-256-GCM ciphertext), with
// the key derived from the operator secret by argon2id. Values without the
// prefix are treated as the legacy format (AES-256-CBC, all-zero IV, key is the
// secret right-padded to 32 bytes) and can only be decrypted.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/argon2"
)

// DefaultKey is used when no key is provided through the environment.
// It is public and only suitable for local testing.
const DefaultKey = "SosInternetDefaultKey"

const (
	prefixV2  = "v2:"
	saltSize  = 16
	nonceSize = 12

	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

var (
	// ErrDecryptionFailed is returned for malformed or tampered ciphertext and wrong keys.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// KeyFromEnv returns the value of the named environment variable, or DefaultKey
// when it is unset. The boolean reports whether the default was used.
func KeyFromEnv(name string) (string, bool) {
	if key := os.Getenv(name); key != "" {
		return key, false
	}
	return DefaultKey, true
}

// IsLegacy reports whether a stored value uses the fixed-IV legacy format.
func IsLegacy(stored string) bool {
	return !strings.HasPrefix(strings.TrimSpace(stored), prefixV2)
}

// Encrypt seals plaintext in the v2 format.
func Encrypt(plaintext, key string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	gcm, err := newGCM(key, salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, saltSize+nonceSize+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return prefixV2 + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a stored value in either format.
func Decrypt(stored, key string) (string, error) {
	stored = strings.TrimSpace(stored)
	if strings.HasPrefix(stored, prefixV2) {
		return decryptV2(strings.TrimPrefix(stored, prefixV2), key)
	}
	return decryptLegacy(stored, key)
}

func decryptV2(encoded, key string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrDecryptionFailed)
	}
	if len(data) < saltSize+nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	gcm, err := newGCM(key, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, data[saltSize+nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

func newGCM(key string, salt []byte) (cipher.AEAD, error) {
	derived := argon2.IDKey([]byte(key), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func decryptLegacy(encoded, key string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrDecryptionFailed)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecryptionFailed)
	}
	k, err := legacyKey(key)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(plain, data)
	plain, err = unpad(plain)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// legacyKey pads the secret with spaces or cuts it to 32 UTF-16 code units,
// then UTF-8 encodes it. Only an ASCII prefix yields a valid 32-byte AES key;
// anything else was never usable for the legacy format and is rejected.
func legacyKey(key string) ([]byte, error) {
	units := utf16.Encode([]rune(key))
	if len(units) > 32 {
		units = units[:32]
	}
	for len(units) < 32 {
		units = append(units, ' ')
	}
	b := []byte(string(utf16.Decode(units)))
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: legacy key must be ASCII", ErrDecryptionFailed)
	}
	return b, nil
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
		}
	}
	return b[:len(b)-n], nil
}
