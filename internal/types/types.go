// Package types defines the core domain models for the stryd challenge
// ledger. It contains the identity and address key types, the Challenge
// record with its participant set and lifecycle status, and the record
// kinds used to seed derived addresses.
package types

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Version is the current version of the ledger application
const Version = "0.1.0"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// KeyLength is the width in bytes of identities and derived addresses.
const KeyLength = 32

// MaxNameLength is the default upper bound, in bytes, of a challenge name.
const MaxNameLength = 100

var errKeyLength = errors.New("key must be 32 bytes")

// Pubkey is an ed25519 public key identifying a signer on the ledger.
// Its canonical text form is base58, the same form the original program's
// clients print; hex is accepted on input as well.
type Pubkey [KeyLength]byte

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != KeyLength {
		return p, fmt.Errorf("pubkey is %d bytes: %w", len(b), errKeyLength)
	}
	copy(p[:], b)
	return p, nil
}

// ParsePubkey decodes a base58 or 64-character hex public key.
func ParsePubkey(s string) (Pubkey, error) {
	b, err := decodeKey(s)
	if err != nil {
		return Pubkey{}, err
	}
	return PubkeyFromBytes(b)
}

func (p Pubkey) String() string { return base58.Encode(p[:]) }

// Hex returns the lowercase hex encoding used by identity key files.
func (p Pubkey) Hex() string { return hex.EncodeToString(p[:]) }

func (p Pubkey) Bytes() []byte { return append([]byte(nil), p[:]...) }

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

func (p Pubkey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Address is the derived, off-curve key under which a record is stored.
type Address [KeyLength]byte

func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != KeyLength {
		return a, fmt.Errorf("address is %d bytes: %w", len(b), errKeyLength)
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress decodes a base58 or 64-character hex address.
func ParseAddress(s string) (Address, error) {
	b, err := decodeKey(s)
	if err != nil {
		return Address{}, err
	}
	return AddressFromBytes(b)
}

func (a Address) String() string { return base58.Encode(a[:]) }

func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

func (a Address) Bytes() []byte { return append([]byte(nil), a[:]...) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func decodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty key")
	}
	if len(s) == 2*KeyLength {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode key %q: %w", s, err)
	}
	return b, nil
}

// RecordKind names a class of ledger record. Its text is the first seed
// of every address derived for that kind.
type RecordKind string

const (
	KindChallenge RecordKind = "challenge"
)

// Seed returns the domain tag bytes for address derivation.
func (k RecordKind) Seed() []byte { return []byte(k) }

// ChallengeStatus is the lifecycle tag of a challenge.
type ChallengeStatus uint8

const (
	StatusOpen ChallengeStatus = iota
	// StatusClosed and StatusSettled are reserved for closing and
	// settlement operations. No transaction type moves a record into
	// them yet.
	StatusClosed
	StatusSettled
)

func (s ChallengeStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusSettled:
		return "settled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func (s ChallengeStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ChallengeStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = StatusOpen
	case "closed":
		*s = StatusClosed
	case "settled":
		*s = StatusSettled
	default:
		return fmt.Errorf("unknown challenge status %q", text)
	}
	return nil
}

// ParticipantSet is the ordered membership of a challenge. Insertion
// order is preserved and an identity appears at most once.
type ParticipantSet []Pubkey

// Contains reports whether id has joined.
func (ps ParticipantSet) Contains(id Pubkey) bool {
	for _, p := range ps {
		if p == id {
			return true
		}
	}
	return false
}

// Add appends id unless it is already present. It reports whether the set
// changed.
func (ps *ParticipantSet) Add(id Pubkey) bool {
	if ps.Contains(id) {
		return false
	}
	*ps = append(*ps, id)
	return true
}

// Challenge is the persisted record for one challenge. Creator,
// ChallengeID, ParamA, ParamB and Name are fixed at creation.
type Challenge struct {
	_ struct{} `cbor:",toarray"`

	Creator      Pubkey          `json:"creator"`
	ChallengeID  uint64          `json:"challenge_id"`
	ParamA       uint64          `json:"param_a"`      // entry stake
	ParamB       uint64          `json:"param_b"`      // duration or target
	Name         string          `json:"name"`         // at most MaxNameLength bytes by default
	Status       ChallengeStatus `json:"status"`       // open, closed, settled
	Participants ParticipantSet  `json:"participants"` // joiners in join order
	Bump         uint8           `json:"bump"`         // bump seed of the derived address
}

// IsOpen reports whether the challenge accepts joiners.
func (c *Challenge) IsOpen() bool { return c.Status == StatusOpen }
