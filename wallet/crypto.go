package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// deriveKey runs scrypt over password+salt to produce an AES-256 key.
// Grounded on the pack's availability of golang.org/x/crypto (teacher go.mod
// and Jason-chen-taiwan-arcSignv2/go.mod both carry it for key-material
// handling).
func deriveKey(password string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// encryptPrivateKey encrypts plaintextHex under password using
// scrypt+AES-256-GCM, returning ciphertext, salt and nonce.
func encryptPrivateKey(plaintextHex, password string) (ciphertext, salt, nonce []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, nil, fmt.Errorf("generate salt: %w", err)
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, nil, nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("new AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("new GCM: %w", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext = gcm.Seal(nil, nonce, []byte(plaintextHex), nil)
	return ciphertext, salt, nonce, nil
}

// decryptPrivateKey reverses encryptPrivateKey. Returns ErrWrongPassword on
// an authentication failure — i.e. wrong password.
func decryptPrivateKey(ciphertext, salt, nonce []byte, password string) (string, error) {
	key, err := deriveKey(password, salt)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassword
	}
	return string(plaintext), nil
}
