package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/vdavid/threadsync/internal/crypto"
)

// TestEncryptionKey is a fixed base64 key for tests.
var TestEncryptionKey = func() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}()

// NewTestEncryptor returns an Encryptor using TestEncryptionKey.
func NewTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()

	e, err := crypto.NewEncryptor(TestEncryptionKey)
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}
	return e
}

// SealPassword seals password for accountID with the test key.
func SealPassword(t *testing.T, accountID, password string) []byte {
	t.Helper()

	sealed, err := NewTestEncryptor(t).Seal(accountID, password)
	if err != nil {
		t.Fatalf("Failed to seal password: %v", err)
	}
	return sealed
}
