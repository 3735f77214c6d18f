package types

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"stryd.mini/ledger/internal/codec"
)

// DiscriminatorLength is the width of the kind tag that prefixes every
// persisted record.
const DiscriminatorLength = 8

// ChallengeDiscriminator tags a Challenge record: the first eight bytes
// of SHA-256("account:Challenge").
var ChallengeDiscriminator = discriminator("Challenge")

// ErrWrongRecordKind is returned when a slot holds a record of another kind.
var ErrWrongRecordKind = errors.New("record discriminator mismatch")

func discriminator(name string) [DiscriminatorLength]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorLength]byte
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

// EncodeChallenge serialises c as discriminator ++ deterministic CBOR
// array [creator, challenge_id, param_a, param_b, name, status,
// participants, bump].
func EncodeChallenge(c *Challenge) ([]byte, error) {
	body, err := codec.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode challenge: %w", err)
	}
	out := make([]byte, 0, DiscriminatorLength+len(body))
	out = append(out, ChallengeDiscriminator[:]...)
	return append(out, body...), nil
}

// DecodeChallenge parses bytes written by EncodeChallenge.
func DecodeChallenge(data []byte) (*Challenge, error) {
	if len(data) < DiscriminatorLength {
		return nil, fmt.Errorf("decode challenge: record is %d bytes", len(data))
	}
	if !bytes.Equal(data[:DiscriminatorLength], ChallengeDiscriminator[:]) {
		return nil, ErrWrongRecordKind
	}
	var c Challenge
	if err := codec.Unmarshal(data[DiscriminatorLength:], &c); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	if c.Participants == nil {
		c.Participants = ParticipantSet{}
	}
	return &c, nil
}

// KindOf names the record kind stored in data, or "" when the
// discriminator is unknown.
func KindOf(data []byte) RecordKind {
	if len(data) >= DiscriminatorLength && bytes.Equal(data[:DiscriminatorLength], ChallengeDiscriminator[:]) {
		return KindChallenge
	}
	return ""
}
