package challenge

import (
	"stryd.mini/ledger/internal/types"
)

// Ranger iterates committed accounts in address order. ledger.State
// implements it.
type Ranger interface {
	Range(fn func(addr types.Address, data []byte) bool)
}

// List returns the challenges in r, optionally only those created by
// creator. Accounts of other kinds are skipped.
func List(r Ranger, creator *types.Pubkey) []Result {
	var out []Result
	r.Range(func(addr types.Address, data []byte) bool {
		if types.KindOf(data) != types.KindChallenge {
			return true
		}
		record, err := types.DecodeChallenge(data)
		if err != nil {
			return true
		}
		if creator != nil && record.Creator != *creator {
			return true
		}
		out = append(out, Result{Address: addr, Challenge: record})
		return true
	})
	return out
}
