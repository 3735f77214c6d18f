package types

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionType names the ledger operation a transaction invokes.
type TransactionType string

const (
	TxCreateChallenge TransactionType = "create_challenge"
	TxJoinChallenge   TransactionType = "join_challenge"
)

// Transaction is the unsigned body of a ledger transaction. Payload holds
// the operation arguments as JSON.
type Transaction struct {
	Type      TransactionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Nonce     string          `json:"nonce"` // random, keeps identical submissions distinct in the mempool
	Payload   json.RawMessage `json:"payload"`
}

// CreateChallengePayload carries the arguments of TxCreateChallenge. The
// creator is the transaction signer.
type CreateChallengePayload struct {
	ChallengeID uint64 `json:"challenge_id"`
	ParamA      uint64 `json:"param_a"`
	ParamB      uint64 `json:"param_b"`
	Name        string `json:"name"`
}

// JoinChallengePayload carries the arguments of TxJoinChallenge. The
// joiner is the transaction signer; Creator is needed to recompute the
// challenge address.
type JoinChallengePayload struct {
	ChallengeID uint64 `json:"challenge_id"`
	Creator     Pubkey `json:"creator"`
}

// ChallengeKey names a challenge by its derivation inputs. It is the
// request body of the /challenge and /address queries.
type ChallengeKey struct {
	Creator     Pubkey `json:"creator"`
	ChallengeID uint64 `json:"challenge_id"`
}

// AddressInfo is the answer to an /address query.
type AddressInfo struct {
	Address   Address `json:"address"`
	Bump      uint8   `json:"bump"`
	ProgramID Pubkey  `json:"program_id"`
}

// Signer produces ed25519 signatures. identity.Identity satisfies it.
type Signer interface {
	Sign(message []byte) []byte
	PublicKey() ed25519.PublicKey
}

// SignedTransaction wraps the serialised Transaction with the signer's
// public key and signature over exactly those bytes.
type SignedTransaction struct {
	Tx        []byte `json:"tx"`
	Signature []byte `json:"signature"`
	PublicKey []byte `json:"public_key"`
}

// NewTransaction builds a transaction with a fresh nonce and the JSON
// encoding of payload.
func NewTransaction(txType TransactionType, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", txType, err)
	}
	return &Transaction{
		Type:      txType,
		Timestamp: time.Now().UTC(),
		Nonce:     uuid.NewString(),
		Payload:   raw,
	}, nil
}

// Sign serialises tx and signs it with s.
func (tx *Transaction) Sign(s Signer) (*SignedTransaction, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	return &SignedTransaction{
		Tx:        body,
		Signature: s.Sign(body),
		PublicKey: []byte(s.PublicKey()),
	}, nil
}

// DecodeSignedTransaction parses the wire form produced by json.Marshal
// of a SignedTransaction.
func DecodeSignedTransaction(b []byte) (*SignedTransaction, error) {
	var stx SignedTransaction
	if err := json.Unmarshal(b, &stx); err != nil {
		return nil, err
	}
	return &stx, nil
}

// Verify checks the signature against the embedded public key.
func (stx *SignedTransaction) Verify() bool {
	if len(stx.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(stx.PublicKey, stx.Tx, stx.Signature)
}

// GetTransaction decodes the inner transaction.
func (stx *SignedTransaction) GetTransaction() (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(stx.Tx, &tx); err != nil {
		return nil, err
	}
	if tx.Type == "" {
		return nil, errors.New("transaction type missing")
	}
	return &tx, nil
}

// SignerKey returns the signer identity.
func (stx *SignedTransaction) SignerKey() (Pubkey, error) {
	return PubkeyFromBytes(stx.PublicKey)
}

// DecodeCreatePayload parses a TxCreateChallenge payload.
func (tx *Transaction) DecodeCreatePayload() (CreateChallengePayload, error) {
	var p CreateChallengePayload
	if tx.Type != TxCreateChallenge {
		return p, fmt.Errorf("transaction is %s, not %s", tx.Type, TxCreateChallenge)
	}
	err := json.Unmarshal(tx.Payload, &p)
	return p, err
}

// DecodeJoinPayload parses a TxJoinChallenge payload.
func (tx *Transaction) DecodeJoinPayload() (JoinChallengePayload, error) {
	var p JoinChallengePayload
	if tx.Type != TxJoinChallenge {
		return p, fmt.Errorf("transaction is %s, not %s", tx.Type, TxJoinChallenge)
	}
	err := json.Unmarshal(tx.Payload, &p)
	return p, err
}

// ChallengeEvent describes a committed state change, emitted by DeliverTx
// and published after Commit.
type ChallengeEvent struct {
	Type        string    `json:"type"` // challenge.created or challenge.joined
	Height      int64     `json:"height"`
	TxHash      string    `json:"tx_hash"`
	Address     Address   `json:"address"`
	Creator     Pubkey    `json:"creator"`
	ChallengeID uint64    `json:"challenge_id"`
	Participant *Pubkey   `json:"participant,omitempty"`
	Time        time.Time `json:"time"`
}

const (
	EventChallengeCreated = "challenge.created"
	EventChallengeJoined  = "challenge.joined"
)
