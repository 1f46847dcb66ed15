// Package secrets stores the marketplace account credentials encrypted at
// rest, outside the preference store.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNoCredentials is returned by Load when no credential file exists yet.
var ErrNoCredentials = errors.New("credentials file not found")

// Credentials holds one marketplace account.
type Credentials struct {
	Username string
	Password string
}

type credentialFile struct {
	Key      string `json:"key"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Save encrypts the credentials with a fresh random key and writes them to
// path with owner-only permissions.
func Save(path string, creds Credentials) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	sealedUser, err := seal(key, creds.Username)
	if err != nil {
		return fmt.Errorf("encrypt username: %w", err)
	}
	sealedPass, err := seal(key, creds.Password)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}

	data, err := json.MarshalIndent(credentialFile{
		Key:      base64.StdEncoding.EncodeToString(key),
		Username: sealedUser,
		Password: sealedPass,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	return nil
}

// Load reads and decrypts the credentials at path. A missing file yields
// ErrNoCredentials so callers can distinguish "not configured" from a
// corrupt file.
func Load(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, ErrNoCredentials
		}
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials file: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(file.Key)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode key: %w", err)
	}

	username, err := open(key, file.Username)
	if err != nil {
		return Credentials{}, fmt.Errorf("decrypt username: %w", err)
	}
	password, err := open(key, file.Password)
	if err != nil {
		return Credentials{}, fmt.Errorf("decrypt password: %w", err)
	}

	return Credentials{Username: username, Password: password}, nil
}

func seal(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func open(key []byte, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	plain, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
