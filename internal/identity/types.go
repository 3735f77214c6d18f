// Package identity manages signer keypairs. Every participant in the
// challenge ledger, creator or joiner, is an ed25519 public key; the
// matching private key signs the transactions submitted on its behalf.
// This package exposes an Identity abstraction for signing and verifying
// messages and for retrieving the ledger key of the signer.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"

	"stryd.mini/ledger/internal/types"
)

var _ types.Signer = (*Identity)(nil)

// Identity represents a signer's cryptographic identity
type Identity struct {
	privateKey   ed25519.PrivateKey
	publicKey    ed25519.PublicKey
	publicKeyHex string
	key          types.Pubkey
}

// NewIdentity creates a new Identity from a private key
func NewIdentity(privKey ed25519.PrivateKey) *Identity {
	pubKey := privKey.Public().(ed25519.PublicKey)
	var key types.Pubkey
	copy(key[:], pubKey)
	return &Identity{
		privateKey:   privKey,
		publicKey:    pubKey,
		publicKeyHex: hex.EncodeToString(pubKey),
		key:          key,
	}
}

// Sign signs the provided message with the identity's private key
func (i *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(i.privateKey, message)
}

// Verify verifies a signature against a message using the identity's public key
func (i *Identity) Verify(message, signature []byte) bool {
	return ed25519.Verify(i.publicKey, message, signature)
}

// PublicKey returns the raw public key
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.publicKey
}

// PrivateKey returns the raw private key
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.privateKey
}

// PublicKeyHex returns the hex-encoded public key string
func (i *Identity) PublicKeyHex() string {
	return i.publicKeyHex
}

// Pubkey returns the ledger identity: creator of the challenges this
// identity creates and participant in the ones it joins.
func (i *Identity) Pubkey() types.Pubkey {
	return i.key
}

// SignTransaction builds a transaction of txType carrying payload and
// signs it.
func (i *Identity) SignTransaction(txType types.TransactionType, payload any) (*types.SignedTransaction, error) {
	tx, err := types.NewTransaction(txType, payload)
	if err != nil {
		return nil, err
	}
	return tx.Sign(i)
}
