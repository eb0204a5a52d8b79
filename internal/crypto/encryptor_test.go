package crypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e, err := NewEncryptor(t.TempDir())
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}
	ciphertext, err := e.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if ciphertext == "hunter2" {
		t.Fatal("expected ciphertext to differ from plaintext")
	}
	plaintext, err := e.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plaintext != "hunter2" {
		t.Fatalf("expected round-trip to recover plaintext, got %q", plaintext)
	}
}

func TestKeyPersistsAcrossEncryptors(t *testing.T) {
	dir := t.TempDir()
	e1, err := NewEncryptor(dir)
	if err != nil {
		t.Fatalf("first NewEncryptor failed: %v", err)
	}
	ciphertext, err := e1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	e2, err := NewEncryptor(dir)
	if err != nil {
		t.Fatalf("second NewEncryptor failed: %v", err)
	}
	plaintext, err := e2.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("expected second encryptor sharing the persisted key to decrypt, got error: %v", err)
	}
	if plaintext != "secret" {
		t.Fatalf("unexpected plaintext %q", plaintext)
	}
}
