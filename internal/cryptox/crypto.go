// Package cryptox holds the symmetric credential codec used by the credential
// mirror and the argon2id password hashing used by the embedded auth provider.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// TokenSeparator joins the hex IV and the hex ciphertext.
const TokenSeparator = ":"

var (
	ErrInvalidKey     = errors.New("cipher key must be 32 bytes")
	ErrMalformedToken = errors.New("malformed credential token")
)

// ParseKey hex-decodes the process-wide cipher secret.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode cipher key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// EncryptCredential encrypts plaintext with AES-256-CBC under a fresh random
// IV and returns "<ivHex>:<cipherHex>".
//
// Example:
//
//	key, _ := cryptox.ParseKey(os.Getenv("ENCRYPTION_KEY"))
//	token, err := cryptox.EncryptCredential("hunter2", key)
//	// token == "9f1c...e2:4ab0...77"
func EncryptCredential(plaintext string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + TokenSeparator + hex.EncodeToString(ciphertext), nil
}

// DecryptCredential reverses EncryptCredential.
func DecryptCredential(token string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", ErrInvalidKey
	}
	ivHex, cipherHex, ok := strings.Cut(token, TokenSeparator)
	if !ok {
		return "", ErrMalformedToken
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrMalformedToken
	}
	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrMalformedToken
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrMalformedToken
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrMalformedToken
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrMalformedToken
		}
	}
	return b[:len(b)-n], nil
}

// argon2id parameters for stored password hashes.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// DeriveKey runs argon2id over password and salt.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// HashPassword returns a random salt and the argon2id hash of password.
func HashPassword(password string) (hash, salt []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}
	return DeriveKey([]byte(password), salt), salt, nil
}

// VerifyPassword reports whether password hashes to hash under salt.
func VerifyPassword(password string, hash, salt []byte) bool {
	return subtle.ConstantTimeCompare(DeriveKey([]byte(password), salt), hash) == 1
}
