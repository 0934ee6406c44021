package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not base64", "not-valid-base64!!!"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"too long", base64.StdEncoding.EncodeToString(make([]byte, 64))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCipher(tt.key); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("NewCipher(%q) error = %v, want ErrInvalidKey", tt.key, err)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	plaintext := "imap-password-123"
	sealed, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed == plaintext {
		t.Error("ciphertext equals plaintext")
	}

	opened, err := cipher.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if opened != plaintext {
		t.Errorf("round trip = %q, want %q", opened, plaintext)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	cipher, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	a, err := cipher.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := cipher.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical output")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	cipher, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	if _, err := cipher.Decrypt("%%% not base64"); !errors.Is(err, ErrMalformedCiphertext) {
		t.Errorf("Decrypt(garbage) error = %v, want ErrMalformedCiphertext", err)
	}
	if _, err := cipher.Decrypt(base64.StdEncoding.EncodeToString([]byte("tiny"))); !errors.Is(err, ErrMalformedCiphertext) {
		t.Errorf("Decrypt(short) error = %v, want ErrMalformedCiphertext", err)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	a, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	b, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	sealed, err := a.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(sealed); err == nil {
		t.Error("Decrypt with wrong key succeeded")
	}
}

func TestRoundTripProperty(t *testing.T) {
	cipher, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	rapid.Check(t, func(t *rapid.T) {
		plaintext := rapid.String().Draw(t, "plaintext")

		sealed, err := cipher.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		opened, err := cipher.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if opened != plaintext {
			t.Fatalf("round trip = %q, want %q", opened, plaintext)
		}
	})
}
