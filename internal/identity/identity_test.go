// Package identity tests validate key generation, loading, and signing
// behavior for the Identity abstraction. These tests ensure persistent key
// files can be created, re-loaded, signed with, and that file permissions
// match expectations.
package identity

import (
	"bytes"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stryd.mini/ledger/internal/types"
)

func TestIdentityLifecycle(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "creator.pem")

	identity1, err := LoadOrCreateIdentity(keyPath)
	if err != nil {
		t.Fatalf("Failed to create identity: %v", err)
	}

	identity2, err := LoadOrCreateIdentity(keyPath)
	if err != nil {
		t.Fatalf("Failed to load identity: %v", err)
	}

	if identity1.PublicKeyHex() != identity2.PublicKeyHex() {
		t.Errorf("Loaded identity differs from original. Got %s, want %s",
			identity2.PublicKeyHex(), identity1.PublicKeyHex())
	}
	if identity1.Pubkey() != identity2.Pubkey() {
		t.Errorf("ledger key differs after reload: %s vs %s", identity1.Pubkey(), identity2.Pubkey())
	}
}

func TestEmptyKeyFileIsRegenerated(t *testing.T) {
	tmpFile, err := os.CreateTemp(t.TempDir(), "empty_key_*.pem")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	id, err := LoadOrCreateIdentity(tmpFile.Name())
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity on empty file: %v", err)
	}
	if id.Pubkey().IsZero() {
		t.Fatal("generated identity has zero public key")
	}
}

func TestCorruptKeyFileIsRejected(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "corrupt.pem")
	if err := os.WriteFile(keyPath, []byte("not a pem file"), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, err := LoadOrCreateIdentity(keyPath); !errors.Is(err, ErrBadKeyFile) {
		t.Fatalf("corrupt key file: got %v, want ErrBadKeyFile", err)
	}
	if data, _ := os.ReadFile(keyPath); string(data) != "not a pem file" {
		t.Fatal("corrupt key file was overwritten")
	}

	// A PEM block of the wrong type is rejected too.
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte{1, 2, 3}})
	if err := os.WriteFile(keyPath, block, 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, err := Load(keyPath); !errors.Is(err, ErrBadKeyFile) {
		t.Fatalf("wrong PEM type: got %v, want ErrBadKeyFile", err)
	}
}

func TestLoadDoesNotCreate(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "missing.pem")
	if _, err := Load(keyPath); !errors.Is(err, ErrNoKeyFile) {
		t.Fatalf("Load: got %v, want ErrNoKeyFile", err)
	}
	if _, err := PubkeyFromFile(keyPath); !errors.Is(err, ErrNoKeyFile) {
		t.Fatalf("PubkeyFromFile: got %v, want ErrNoKeyFile", err)
	}
	if _, err := os.Stat(keyPath); !os.IsNotExist(err) {
		t.Fatalf("Load created a key file: %v", err)
	}
}

func TestSaveReplacesKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "joiner.pem")
	first, err := LoadOrCreateIdentity(keyPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := FromSeed(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	if err := second.Save(keyPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := PubkeyFromFile(keyPath)
	if err != nil {
		t.Fatalf("PubkeyFromFile: %v", err)
	}
	if got != second.Pubkey() || got == first.Pubkey() {
		t.Fatalf("key file holds %s, want %s", got, second.Pubkey())
	}
	entries, _ := os.ReadDir(filepath.Dir(keyPath))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestSignTransaction(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stx, err := id.SignTransaction(types.TxCreateChallenge, types.CreateChallengePayload{ChallengeID: 1, Name: "Challenge 1"})
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}
	if !stx.Verify() {
		t.Fatal("signed transaction does not verify")
	}
	signer, err := stx.SignerKey()
	if err != nil || signer != id.Pubkey() {
		t.Fatalf("signer %s (%v), want %s", signer, err, id.Pubkey())
	}
}

func TestSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	identity, err := LoadOrCreateIdentity(filepath.Join(dir, "signer.pem"))
	if err != nil {
		t.Fatalf("Failed to create identity: %v", err)
	}

	message := []byte("join challenge 1")
	signature := identity.Sign(message)

	if !identity.Verify(message, signature) {
		t.Error("Failed to verify signature with own public key")
	}

	otherIdentity, err := LoadOrCreateIdentity(filepath.Join(dir, "other.pem"))
	if err != nil {
		t.Fatalf("Failed to create other identity: %v", err)
	}

	if otherIdentity.Verify(message, signature) {
		t.Error("Incorrectly verified signature with wrong public key")
	}
}

func TestFromSeedIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	b, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	if a.Pubkey() != b.Pubkey() {
		t.Fatalf("same seed produced different keys")
	}
	if _, err := FromSeed(seed[:31]); err == nil {
		t.Fatal("expected error for short seed")
	}
	if !bytes.Equal(a.Pubkey().Bytes(), a.PublicKey()) {
		t.Fatal("Pubkey bytes do not match raw public key")
	}
}

func TestPermissions(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "secure_test_key.pem")

	if _, err := LoadOrCreateIdentity(keyPath); err != nil {
		t.Fatalf("Failed to create identity: %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("Failed to stat key file: %v", err)
	}

	// On Unix systems, check for 0600 permissions
	if info.Mode().Perm() != 0600 {
		t.Errorf("Key file has wrong permissions. Got %v, want %v",
			info.Mode().Perm(), 0600)
	}
}
