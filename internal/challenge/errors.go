package challenge

import (
	"errors"
)

// Rejections. Each aborts the transaction that produced it; callers match
// them with errors.Is.
var (
	ErrDuplicateChallenge = errors.New("challenge already exists")
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrChallengeClosed    = errors.New("challenge is not open")
	ErrAlreadyJoined      = errors.New("already joined")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// Result codes reported to the consensus engine. 0-3 are transport-level
// codes owned by the ABCI application.
const (
	CodeDuplicateChallenge uint32 = 10
	CodeChallengeNotFound  uint32 = 11
	CodeChallengeClosed    uint32 = 12
	CodeAlreadyJoined      uint32 = 13
	CodeInvalidArgument    uint32 = 14
	CodeInternal           uint32 = 20
)

var taxonomy = []struct {
	err  error
	code uint32
	tag  string
}{
	{ErrDuplicateChallenge, CodeDuplicateChallenge, "DuplicateChallenge"},
	{ErrChallengeNotFound, CodeChallengeNotFound, "ChallengeNotFound"},
	{ErrChallengeClosed, CodeChallengeClosed, "ChallengeClosed"},
	{ErrAlreadyJoined, CodeAlreadyJoined, "AlreadyJoined"},
	{ErrInvalidArgument, CodeInvalidArgument, "InvalidArgument"},
}

// Code maps err to its result code. Errors outside the taxonomy are
// CodeInternal.
func Code(err error) uint32 {
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.code
		}
	}
	return CodeInternal
}

// Tag names the rejection carried by err, e.g. "AlreadyJoined", or
// "Internal".
func Tag(err error) string {
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.tag
		}
	}
	return "Internal"
}

// ErrorForCode is the inverse of Code, for clients that only see the
// result code. It returns nil for codes outside the taxonomy.
func ErrorForCode(code uint32) error {
	for _, t := range taxonomy {
		if t.code == code {
			return t.err
		}
	}
	return nil
}
