// Package abci contains the ABCI application that connects the challenge
// program to the Tendermint consensus engine. CheckTx performs the
// stateless checks (envelope, signature, argument bounds); DeliverTx runs
// the operation inside a ledger transaction and commits or discards it as
// a unit; Commit closes the block and returns the app hash.
package abci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/crypto/tmhash"

	"stryd.mini/ledger/internal/challenge"
	"stryd.mini/ledger/internal/ledger"
	"stryd.mini/ledger/internal/logger"
	"stryd.mini/ledger/internal/types"
)

const (
	CodeTypeOK            uint32 = 0
	CodeTypeEncodingError uint32 = 1
	CodeTypeAuthError     uint32 = 2
	CodeTypeInvalidTx     uint32 = 3
)

// Query paths.
const (
	QueryChallenge           = "/challenge"
	QueryChallengesByCreator = "/challenges/creator"
	QueryAddress             = "/address"
)

// AppName is reported in Info.
const AppName = "stryd"

// ABCIApplication implements the ABCI interface.
type ABCIApplication struct {
	abci.BaseApplication
	state   *ledger.State
	machine *challenge.Machine
	journal *logger.Logger

	blockTime   time.Time
	blockEvents []types.ChallengeEvent

	// OnCommit, when set, is called after every committed block, empty
	// blocks included, with that block's events. It runs on the consensus
	// connection and must not block.
	OnCommit func(height int64, events []types.ChallengeEvent)
}

// NewABCIApplication creates the application over state. A nil journal
// gets a small private one.
func NewABCIApplication(state *ledger.State, machine *challenge.Machine, journal *logger.Logger) *ABCIApplication {
	if journal == nil {
		journal = logger.New(100)
	}
	return &ABCIApplication{
		state:   state,
		machine: machine,
		journal: journal,
	}
}

// State returns the ledger the application executes against.
func (app *ABCIApplication) State() *ledger.State { return app.state }

// Machine returns the challenge program.
func (app *ABCIApplication) Machine() *challenge.Machine { return app.machine }

// Journal returns the transaction outcome journal.
func (app *ABCIApplication) Journal() *logger.Logger { return app.journal }

func (app *ABCIApplication) Info(req abci.RequestInfo) abci.ResponseInfo {
	height := app.state.Height()
	resp := abci.ResponseInfo{
		Data:            AppName,
		Version:         types.Version,
		AppVersion:      1,
		LastBlockHeight: height,
	}
	if height > 0 {
		resp.LastBlockAppHash = app.state.AppHash()
	}
	return resp
}

// decoded is a verified transaction ready for dispatch.
type decoded struct {
	tx     *types.Transaction
	signer types.Pubkey
	create types.CreateChallengePayload
	join   types.JoinChallengePayload
}

// decode checks everything about raw that does not depend on ledger state.
func (app *ABCIApplication) decode(raw []byte) (*decoded, uint32, string) {
	signedTx, err := types.DecodeSignedTransaction(raw)
	if err != nil {
		return nil, CodeTypeEncodingError, "failed to decode signed tx"
	}
	if !signedTx.Verify() {
		return nil, CodeTypeAuthError, "invalid signature"
	}
	signer, err := signedTx.SignerKey()
	if err != nil {
		return nil, CodeTypeAuthError, err.Error()
	}
	tx, err := signedTx.GetTransaction()
	if err != nil {
		return nil, CodeTypeEncodingError, "failed to decode inner tx"
	}

	d := &decoded{tx: tx, signer: signer}
	switch tx.Type {
	case types.TxCreateChallenge:
		if d.create, err = tx.DecodeCreatePayload(); err != nil {
			err = fmt.Errorf("%w: create_challenge payload: %v", challenge.ErrInvalidArgument, err)
			return nil, challenge.Code(err), err.Error()
		}
		if err := app.machine.ValidateCreate(createArgs(d.create)); err != nil {
			return nil, challenge.Code(err), err.Error()
		}
	case types.TxJoinChallenge:
		if d.join, err = tx.DecodeJoinPayload(); err != nil {
			err = fmt.Errorf("%w: join_challenge payload: %v", challenge.ErrInvalidArgument, err)
			return nil, challenge.Code(err), err.Error()
		}
		if err := app.machine.ValidateJoin(joinArgs(d.join)); err != nil {
			return nil, challenge.Code(err), err.Error()
		}
	default:
		return nil, CodeTypeInvalidTx, "unknown transaction type"
	}
	return d, CodeTypeOK, ""
}

func (app *ABCIApplication) CheckTx(req abci.RequestCheckTx) abci.ResponseCheckTx {
	if _, code, msg := app.decode(req.Tx); code != CodeTypeOK {
		return abci.ResponseCheckTx{Code: code, Log: msg}
	}
	return abci.ResponseCheckTx{Code: CodeTypeOK}
}

func (app *ABCIApplication) BeginBlock(req abci.RequestBeginBlock) abci.ResponseBeginBlock {
	app.blockTime = req.Header.Time
	app.blockEvents = nil
	return abci.ResponseBeginBlock{}
}

func (app *ABCIApplication) DeliverTx(req abci.RequestDeliverTx) abci.ResponseDeliverTx {
	d, code, msg := app.decode(req.Tx)
	if code != CodeTypeOK {
		app.journal.Rejected(code, msg)
		return abci.ResponseDeliverTx{Code: code, Log: msg}
	}

	txn := app.state.Begin(d.signer)
	var (
		res       *challenge.Result
		err       error
		eventType string
	)
	switch d.tx.Type {
	case types.TxCreateChallenge:
		eventType = types.EventChallengeCreated
		res, err = app.machine.CreateChallenge(txn, createArgs(d.create))
	case types.TxJoinChallenge:
		eventType = types.EventChallengeJoined
		res, err = app.machine.JoinChallenge(txn, joinArgs(d.join))
	}
	if err != nil {
		txn.Discard()
		code := challenge.Code(err)
		if code == challenge.CodeInternal {
			log.Printf("ERROR: %s from %s: %v", d.tx.Type, d.signer, err)
		}
		app.journal.Rejected(code, fmt.Sprintf("%s: %v", challenge.Tag(err), err))
		return abci.ResponseDeliverTx{Code: code, Log: err.Error(), Codespace: AppName}
	}
	if err := txn.Commit(); err != nil {
		app.journal.Rejected(challenge.CodeInternal, err.Error())
		return abci.ResponseDeliverTx{Code: challenge.CodeInternal, Log: err.Error(), Codespace: AppName}
	}

	ev := types.ChallengeEvent{
		Type:        eventType,
		TxHash:      fmt.Sprintf("%X", tmhash.Sum(req.Tx)),
		Address:     res.Address,
		Creator:     res.Challenge.Creator,
		ChallengeID: res.Challenge.ChallengeID,
		Time:        app.blockTime,
	}
	if eventType == types.EventChallengeJoined {
		p := d.signer
		ev.Participant = &p
	}
	app.blockEvents = append(app.blockEvents, ev)

	log.Printf("INFO: %s %s/%d at %s", eventType, ev.Creator, ev.ChallengeID, ev.Address)
	return abci.ResponseDeliverTx{
		Code:   CodeTypeOK,
		Events: []abci.Event{toABCIEvent(ev)},
	}
}

func (app *ABCIApplication) Commit() abci.ResponseCommit {
	appHash, err := app.state.Commit(context.Background())
	if err != nil {
		// Consensus cannot continue past a block this node failed to persist.
		log.Panicf("FATAL: commit block %d: %v", app.state.Height()+1, err)
	}

	height := app.state.Height()
	events := app.blockEvents
	app.blockEvents = nil
	for i := range events {
		events[i].Height = height
		app.journal.Committed(events[i])
	}
	if app.OnCommit != nil {
		app.OnCommit(height, events)
	}
	return abci.ResponseCommit{Data: appHash}
}

func (app *ABCIApplication) Query(req abci.RequestQuery) abci.ResponseQuery {
	height := app.state.Height()
	var (
		value any
		err   error
	)
	switch req.Path {
	case QueryChallenge:
		value, err = app.queryChallenge(req.Data)
	case QueryChallengesByCreator:
		value, err = app.queryByCreator(req.Data)
	case QueryAddress:
		value, err = app.queryAddress(req.Data)
	default:
		return abci.ResponseQuery{Code: CodeTypeInvalidTx, Log: "unknown query path " + strconv.Quote(req.Path), Height: height}
	}
	if err != nil {
		code := challenge.Code(err)
		if errors.Is(err, errBadQuery) {
			code = CodeTypeEncodingError
		}
		return abci.ResponseQuery{Code: code, Log: err.Error(), Height: height, Codespace: AppName}
	}

	body, err := json.Marshal(value)
	if err != nil {
		return abci.ResponseQuery{Code: challenge.CodeInternal, Log: err.Error(), Height: height}
	}
	return abci.ResponseQuery{Code: CodeTypeOK, Key: req.Data, Value: body, Height: height}
}

var errBadQuery = errors.New("malformed query data")

// queryChallenge accepts a JSON ChallengeKey or a raw 32-byte address.
func (app *ABCIApplication) queryChallenge(data []byte) (*challenge.Result, error) {
	if len(data) == types.KeyLength {
		addr, _ := types.AddressFromBytes(data)
		raw, ok := app.state.Get(addr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", challenge.ErrChallengeNotFound, addr)
		}
		record, err := types.DecodeChallenge(raw)
		if err != nil {
			return nil, err
		}
		return &challenge.Result{Address: addr, Challenge: record}, nil
	}

	var key types.ChallengeKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadQuery, err)
	}
	record, addr, err := app.machine.Lookup(app.state, key.Creator, key.ChallengeID)
	if err != nil {
		return nil, err
	}
	return &challenge.Result{Address: addr, Challenge: record}, nil
}

// queryByCreator accepts a creator as text or 32 raw bytes; empty data
// lists every challenge.
func (app *ABCIApplication) queryByCreator(data []byte) ([]challenge.Result, error) {
	var creator *types.Pubkey
	if len(data) > 0 {
		var pk types.Pubkey
		var err error
		if len(data) == types.KeyLength {
			pk, err = types.PubkeyFromBytes(data)
		} else {
			pk, err = types.ParsePubkey(string(data))
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadQuery, err)
		}
		creator = &pk
	}
	out := challenge.List(app.state, creator)
	if out == nil {
		out = []challenge.Result{}
	}
	return out, nil
}

func (app *ABCIApplication) queryAddress(data []byte) (*types.AddressInfo, error) {
	var key types.ChallengeKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadQuery, err)
	}
	deriver := app.machine.Deriver()
	addr, bump := deriver.Derive(types.KindChallenge, key.Creator, key.ChallengeID)
	return &types.AddressInfo{Address: addr, Bump: bump, ProgramID: deriver.ProgramID()}, nil
}

func createArgs(p types.CreateChallengePayload) challenge.CreateArgs {
	return challenge.CreateArgs{ChallengeID: p.ChallengeID, ParamA: p.ParamA, ParamB: p.ParamB, Name: p.Name}
}

func joinArgs(p types.JoinChallengePayload) challenge.JoinArgs {
	return challenge.JoinArgs{ChallengeID: p.ChallengeID, Creator: p.Creator}
}

func toABCIEvent(ev types.ChallengeEvent) abci.Event {
	attrs := []abci.EventAttribute{
		{Key: []byte("address"), Value: []byte(ev.Address.String()), Index: true},
		{Key: []byte("creator"), Value: []byte(ev.Creator.String()), Index: true},
		{Key: []byte("challenge_id"), Value: []byte(strconv.FormatUint(ev.ChallengeID, 10)), Index: true},
	}
	if ev.Participant != nil {
		attrs = append(attrs, abci.EventAttribute{Key: []byte("participant"), Value: []byte(ev.Participant.String()), Index: true})
	}
	return abci.Event{Type: ev.Type, Attributes: attrs}
}
