// Package address derives the deterministic ledger addresses under which
// records live.
//
// A challenge lives at the program-derived address of the seeds
//
//	"challenge" ++ creator (32 bytes) ++ challenge_id (8 bytes, little-endian)
//
// computed with the same construction the original on-chain program uses,
// so an address computed here matches the one its clients compute for the
// same program ID. The layout is versioned by the record kind tag; changing
// any part of it moves every existing record.
package address

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"stryd.mini/ledger/internal/types"
)

const (
	// MaxSeeds is the largest number of seeds, bump included, a derived
	// address may use.
	MaxSeeds = 16
	// MaxSeedLength is the largest single seed in bytes.
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

// DefaultProgramIDText is the program ID the challenge program was
// deployed under.
const DefaultProgramIDText = "ADPCeyuUkasdBcnGRDoFR4ZzmGKbsjtLW9KJwMpdX5Ce"

var (
	ErrMaxSeedLength = errors.New("seed exceeds maximum length")
	ErrTooManySeeds  = errors.New("too many seeds")
	// ErrOnCurve means the candidate hash is a valid ed25519 point and so
	// could have a private key; such a hash is never used as an address.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")
	// ErrNoViableBump is returned when every bump from 255 to 0 lands on
	// the curve.
	ErrNoViableBump = errors.New("unable to find a viable bump seed")
)

// DefaultProgramID is DefaultProgramIDText decoded.
var DefaultProgramID = mustParseProgramID(DefaultProgramIDText)

func mustParseProgramID(s string) types.Pubkey {
	b, err := base58.Decode(s)
	if err != nil {
		panic(fmt.Sprintf("address: bad program id %q: %v", s, err))
	}
	id, err := types.PubkeyFromBytes(b)
	if err != nil {
		panic(fmt.Sprintf("address: bad program id %q: %v", s, err))
	}
	return id
}

// Deriver computes record addresses for one program.
type Deriver struct {
	programID types.Pubkey
}

// NewDeriver returns a Deriver for programID. A zero programID selects
// DefaultProgramID.
func NewDeriver(programID types.Pubkey) *Deriver {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return &Deriver{programID: programID}
}

// ProgramID returns the program the addresses are derived for.
func (d *Deriver) ProgramID() types.Pubkey { return d.programID }

// Derive returns the address of the record of kind identified by
// (creator, challengeID), and the bump seed that produced it.
func (d *Deriver) Derive(kind types.RecordKind, creator types.Pubkey, challengeID uint64) (types.Address, uint8) {
	addr, bump, err := FindAddress(Seeds(kind, creator, challengeID), d.programID)
	if err != nil {
		// The seeds are fixed-width and short, and 256 consecutive
		// on-curve hashes do not happen.
		panic(fmt.Sprintf("address: derive %s/%s/%d: %v", kind, creator, challengeID, err))
	}
	return addr, bump
}

// Verify reports whether addr is the address of (kind, creator,
// challengeID) under the given bump.
func (d *Deriver) Verify(addr types.Address, kind types.RecordKind, creator types.Pubkey, challengeID uint64, bump uint8) bool {
	seeds := append(Seeds(kind, creator, challengeID), []byte{bump})
	got, err := CreateAddress(seeds, d.programID)
	return err == nil && got == addr
}

// Seeds returns the seed list for a record: kind tag, creator key and
// challenge ID as 8 little-endian bytes.
func Seeds(kind types.RecordKind, creator types.Pubkey, challengeID uint64) [][]byte {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], challengeID)
	return [][]byte{kind.Seed(), creator.Bytes(), id[:]}
}

// CreateAddress hashes seeds with programID into an address. The last
// seed is normally the bump. It fails with ErrOnCurve when the hash is a
// curve point.
func CreateAddress(seeds [][]byte, programID types.Pubkey) (types.Address, error) {
	if len(seeds) > MaxSeeds {
		return types.Address{}, ErrTooManySeeds
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return types.Address{}, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr types.Address
	copy(addr[:], h.Sum(nil))
	if IsOnCurve(addr[:]) {
		return types.Address{}, ErrOnCurve
	}
	return addr, nil
}

// FindAddress searches bumps from 255 down to 0 and returns the first
// off-curve address.
func FindAddress(seeds [][]byte, programID types.Pubkey) (types.Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.Address{}, 0, ErrTooManySeeds
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return types.Address{}, 0, err
		}
	}
	return types.Address{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
// Non-canonical encodings of valid points count as on-curve.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
