// Package challenge implements the program logic of the challenge ledger:
// creating a challenge at its derived address and joining an open one.
//
// The Machine is synchronous and holds no locks. Each operation checks all
// of its preconditions before writing anything through the Context, and
// returns one of the sentinel errors in errors.go on rejection; the caller
// then discards the transaction. Exclusive access to the touched address
// for the duration of an operation is the host runtime's job.
//
// Records move NonExistent -> Open through CreateChallenge and stay Open
// while JoinChallenge grows the participant set. Closed and Settled are
// reserved states with no operation leading into them.
package challenge

import (
	"fmt"
	"unicode/utf8"

	"stryd.mini/ledger/internal/address"
	"stryd.mini/ledger/internal/types"
)

// Context is the transaction view an operation runs against.
// ledger.Txn implements it.
type Context interface {
	// Signer is the authenticated identity of the transaction.
	Signer() types.Pubkey
	Get(addr types.Address) ([]byte, bool)
	Put(addr types.Address, data []byte)
}

// Reader is the read half of Context, enough for lookups.
type Reader interface {
	Get(addr types.Address) ([]byte, bool)
}

// Config bounds operation arguments.
type Config struct {
	// MaxNameLength is the largest name in bytes. Zero selects
	// types.MaxNameLength.
	MaxNameLength int
}

// CreateArgs are the arguments of CreateChallenge. The creator is the
// signer.
type CreateArgs struct {
	ChallengeID uint64
	ParamA      uint64
	ParamB      uint64
	Name        string
}

// JoinArgs are the arguments of JoinChallenge. The joiner is the signer.
type JoinArgs struct {
	ChallengeID uint64
	Creator     types.Pubkey
}

// Result is the record an operation committed and where it lives.
type Result struct {
	Address   types.Address    `json:"address"`
	Challenge *types.Challenge `json:"challenge"`
}

// Machine executes challenge operations.
type Machine struct {
	deriver *address.Deriver
	cfg     Config
}

func NewMachine(deriver *address.Deriver, cfg Config) *Machine {
	if cfg.MaxNameLength <= 0 || cfg.MaxNameLength > types.MaxNameLength {
		cfg.MaxNameLength = types.MaxNameLength
	}
	return &Machine{deriver: deriver, cfg: cfg}
}

// Deriver returns the address deriver the machine uses.
func (m *Machine) Deriver() *address.Deriver { return m.deriver }

// MaxNameLength returns the configured name bound.
func (m *Machine) MaxNameLength() int { return m.cfg.MaxNameLength }

// Address returns where the challenge (creator, challengeID) lives.
func (m *Machine) Address(creator types.Pubkey, challengeID uint64) types.Address {
	addr, _ := m.deriver.Derive(types.KindChallenge, creator, challengeID)
	return addr
}

// ValidateCreate checks the arguments of CreateChallenge that do not
// depend on ledger state.
func (m *Machine) ValidateCreate(args CreateArgs) error {
	if len(args.Name) > m.cfg.MaxNameLength {
		return fmt.Errorf("%w: name is %d bytes, limit %d", ErrInvalidArgument, len(args.Name), m.cfg.MaxNameLength)
	}
	if !utf8.ValidString(args.Name) {
		return fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidArgument)
	}
	return nil
}

// ValidateJoin checks the arguments of JoinChallenge that do not depend on
// ledger state.
func (m *Machine) ValidateJoin(args JoinArgs) error {
	if args.Creator.IsZero() {
		return fmt.Errorf("%w: creator is empty", ErrInvalidArgument)
	}
	return nil
}

// CreateChallenge allocates the record for (signer, ChallengeID) in the
// Open state with no participants. The creator does not become a
// participant.
func (m *Machine) CreateChallenge(ctx Context, args CreateArgs) (*Result, error) {
	if err := m.ValidateCreate(args); err != nil {
		return nil, err
	}

	creator := ctx.Signer()
	addr, bump := m.deriver.Derive(types.KindChallenge, creator, args.ChallengeID)
	if _, exists := ctx.Get(addr); exists {
		return nil, fmt.Errorf("%w: %s/%d at %s", ErrDuplicateChallenge, creator, args.ChallengeID, addr)
	}

	record := &types.Challenge{
		Creator:      creator,
		ChallengeID:  args.ChallengeID,
		ParamA:       args.ParamA,
		ParamB:       args.ParamB,
		Name:         args.Name,
		Status:       types.StatusOpen,
		Participants: types.ParticipantSet{},
		Bump:         bump,
	}
	data, err := types.EncodeChallenge(record)
	if err != nil {
		return nil, err
	}
	ctx.Put(addr, data)
	return &Result{Address: addr, Challenge: record}, nil
}

// JoinChallenge appends the signer to the participants of the open
// challenge (Creator, ChallengeID). The creator may join their own
// challenge.
func (m *Machine) JoinChallenge(ctx Context, args JoinArgs) (*Result, error) {
	if err := m.ValidateJoin(args); err != nil {
		return nil, err
	}

	record, addr, err := m.Lookup(ctx, args.Creator, args.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !record.IsOpen() {
		return nil, fmt.Errorf("%w: %s is %s", ErrChallengeClosed, addr, record.Status)
	}

	joiner := ctx.Signer()
	if !record.Participants.Add(joiner) {
		return nil, fmt.Errorf("%w: %s in %s", ErrAlreadyJoined, joiner, addr)
	}

	data, err := types.EncodeChallenge(record)
	if err != nil {
		return nil, err
	}
	ctx.Put(addr, data)
	return &Result{Address: addr, Challenge: record}, nil
}

// Lookup loads the challenge (creator, challengeID). It fails with
// ErrChallengeNotFound when no record exists at the derived address.
func (m *Machine) Lookup(r Reader, creator types.Pubkey, challengeID uint64) (*types.Challenge, types.Address, error) {
	addr := m.Address(creator, challengeID)
	data, ok := r.Get(addr)
	if !ok {
		return nil, addr, fmt.Errorf("%w: %s/%d", ErrChallengeNotFound, creator, challengeID)
	}
	record, err := types.DecodeChallenge(data)
	if err != nil {
		return nil, addr, fmt.Errorf("load %s: %w", addr, err)
	}
	if record.Creator != creator || record.ChallengeID != challengeID {
		return nil, addr, fmt.Errorf("load %s: record belongs to %s/%d", addr, record.Creator, record.ChallengeID)
	}
	return record, addr, nil
}
