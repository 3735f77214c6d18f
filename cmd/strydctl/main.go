// Command strydctl is the client of the stryd challenge ledger: it manages
// signing keys, derives challenge addresses and submits or inspects
// challenges through a Tendermint node's RPC endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"stryd.mini/ledger/internal/abci"
	"stryd.mini/ledger/internal/address"
	"stryd.mini/ledger/internal/challenge"
	"stryd.mini/ledger/internal/identity"
	"stryd.mini/ledger/internal/tendermint"
	"stryd.mini/ledger/internal/types"
)

const usage = `usage: strydctl <command> [flags]

commands:
  keygen    create (or show) a signing key
  address   derive the address of a challenge
  create    create a challenge
  join      join a challenge
  show      show one challenge, or list a creator's challenges
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "strydctl:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "keygen":
		return runKeygen(rest, out)
	case "address":
		return runAddress(rest, out)
	case "create":
		return runCreate(ctx, rest, out)
	case "join":
		return runJoin(ctx, rest, out)
	case "show":
		return runShow(ctx, rest, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("strydctl "+name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

type rpcFlags struct {
	rpc     string
	timeout time.Duration
}

func (r *rpcFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&r.rpc, "rpc", envOr("STRYD_RPC", tendermint.DefaultRPCAddress), "Tendermint RPC address")
	fs.DurationVar(&r.timeout, "timeout", 30*time.Second, "request timeout")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runKeygen(args []string, out io.Writer) error {
	fs := newFlagSet("keygen")
	keyPath := fs.String("key", "stryd_key.pem", "path of the PEM key file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	id, err := identity.LoadOrCreateIdentity(*keyPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "key:    %s\npubkey: %s\nhex:    %s\n", *keyPath, id.Pubkey(), id.PublicKeyHex())
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := newFlagSet("address")
	creatorText := fs.String("creator", "", "creator public key (base58 or hex)")
	keyPath := fs.String("key", "", "derive for the key in this file instead of --creator")
	id := fs.Uint64("id", 0, "challenge id")
	programText := fs.String("program-id", "", "program id (base58); empty selects the built-in one")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	creator, err := resolveCreator(*creatorText, *keyPath)
	if err != nil {
		return err
	}
	var programID types.Pubkey
	if *programText != "" {
		if programID, err = types.ParsePubkey(*programText); err != nil {
			return fmt.Errorf("program id: %w", err)
		}
	}

	deriver := address.NewDeriver(programID)
	addr, bump := deriver.Derive(types.KindChallenge, creator, *id)
	return writeJSON(out, types.AddressInfo{Address: addr, Bump: bump, ProgramID: deriver.ProgramID()})
}

func runCreate(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("create")
	var rf rpcFlags
	rf.register(fs)
	keyPath := fs.String("key", "stryd_key.pem", "signing key of the creator")
	id := fs.Uint64("id", 0, "challenge id, unique per creator")
	paramA := fs.Uint64("param-a", 0, "entry stake")
	paramB := fs.Uint64("param-b", 0, "duration or target")
	name := fs.String("name", "", "challenge name")
	async := fs.Bool("async", false, "return after CheckTx instead of waiting for the block")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if len(*name) > types.MaxNameLength {
		return fmt.Errorf("%w: name is %d bytes, limit %d", challenge.ErrInvalidArgument, len(*name), types.MaxNameLength)
	}

	payload := types.CreateChallengePayload{ChallengeID: *id, ParamA: *paramA, ParamB: *paramB, Name: *name}
	return submit(ctx, rf, *keyPath, types.TxCreateChallenge, payload, !*async, out)
}

func runJoin(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("join")
	var rf rpcFlags
	rf.register(fs)
	keyPath := fs.String("key", "stryd_key.pem", "signing key of the joiner")
	creatorText := fs.String("creator", "", "creator public key (base58 or hex)")
	id := fs.Uint64("id", 0, "challenge id")
	async := fs.Bool("async", false, "return after CheckTx instead of waiting for the block")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *creatorText == "" {
		return fmt.Errorf("%w: --creator is required", errUsage)
	}
	creator, err := types.ParsePubkey(*creatorText)
	if err != nil {
		return fmt.Errorf("creator: %w", err)
	}

	payload := types.JoinChallengePayload{ChallengeID: *id, Creator: creator}
	return submit(ctx, rf, *keyPath, types.TxJoinChallenge, payload, !*async, out)
}

func runShow(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("show")
	var rf rpcFlags
	rf.register(fs)
	creatorText := fs.String("creator", "", "creator public key (base58 or hex)")
	keyPath := fs.String("key", "", "use the public key in this file as creator")
	id := fs.Uint64("id", 0, "challenge id")
	list := fs.Bool("list", false, "list every challenge of the creator")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	creator, err := resolveCreator(*creatorText, *keyPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, rf.timeout)
	defer cancel()
	client := tendermint.NewBroadcastClient(rf.rpc)

	var value []byte
	if *list {
		value, err = client.ABCIQuery(ctx, abci.QueryChallengesByCreator, []byte(creator.String()))
	} else {
		key, _ := json.Marshal(types.ChallengeKey{Creator: creator, ChallengeID: *id})
		value, err = client.ABCIQuery(ctx, abci.QueryChallenge, key)
	}
	if err != nil {
		return err
	}

	var pretty any
	if err := json.Unmarshal(value, &pretty); err != nil {
		return fmt.Errorf("decode query result: %w", err)
	}
	return writeJSON(out, pretty)
}

func submit(ctx context.Context, rf rpcFlags, keyPath string, txType types.TransactionType, payload any, commit bool, out io.Writer) error {
	id, err := identity.Load(keyPath)
	if errors.Is(err, identity.ErrNoKeyFile) {
		return fmt.Errorf("signing key: %w (run strydctl keygen first)", err)
	}
	if err != nil {
		return err
	}
	stx, err := id.SignTransaction(txType, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, rf.timeout)
	defer cancel()
	res, err := tendermint.NewBroadcastClient(rf.rpc).BroadcastSignedTransaction(ctx, stx, commit)
	if err != nil {
		return fmt.Errorf("%s: %w", txType, err)
	}
	return writeJSON(out, res)
}

func resolveCreator(text, keyPath string) (types.Pubkey, error) {
	switch {
	case text != "":
		return types.ParsePubkey(text)
	case keyPath != "":
		return identity.PubkeyFromFile(keyPath)
	default:
		return types.Pubkey{}, fmt.Errorf("%w: --creator or --key is required", errUsage)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
