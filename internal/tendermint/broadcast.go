package tendermint

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"stryd.mini/ledger/internal/challenge"
	"stryd.mini/ledger/internal/types"
)

// DefaultRPCAddress is where a local Tendermint node serves JSON-RPC.
const DefaultRPCAddress = "http://localhost:26657"

// BroadcastClient submits transactions and queries over Tendermint's
// JSON-RPC endpoint.
type BroadcastClient struct {
	rpcAddr string
	client  *http.Client
}

// NewBroadcastClient creates a client for rpcAddr (e.g.
// "http://localhost:26657").
func NewBroadcastClient(rpcAddr string) *BroadcastClient {
	if rpcAddr == "" {
		rpcAddr = DefaultRPCAddress
	}
	return &BroadcastClient{
		rpcAddr: rpcAddr,
		client: &http.Client{
			// broadcast_tx_commit waits for a block
			Timeout: 30 * time.Second,
		},
	}
}

// TxError is a transaction refused by the application. Err is the
// matching challenge sentinel when the code belongs to the taxonomy, so
// errors.Is(err, challenge.ErrAlreadyJoined) works across the wire.
type TxError struct {
	Phase string // check_tx or deliver_tx
	Code  uint32
	Log   string
	Err   error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s failed with code %d: %s", e.Phase, e.Code, e.Log)
}

func (e *TxError) Unwrap() error { return e.Err }

func txError(phase string, code uint32, log string) error {
	return &TxError{Phase: phase, Code: code, Log: log, Err: challenge.ErrorForCode(code)}
}

// BroadcastResult describes an accepted transaction.
type BroadcastResult struct {
	Hash   string `json:"hash"`
	Height int64  `json:"height,omitempty"` // set by commit broadcasts
}

// BroadcastTxSync returns once CheckTx has accepted tx.
func (bc *BroadcastClient) BroadcastTxSync(ctx context.Context, tx []byte) (*BroadcastResult, error) {
	var res struct {
		Code uint32 `json:"code"`
		Log  string `json:"log"`
		Hash string `json:"hash"`
	}
	if err := bc.call(ctx, "broadcast_tx_sync", map[string]string{"tx": base64.StdEncoding.EncodeToString(tx)}, &res); err != nil {
		return nil, err
	}
	if res.Code != 0 {
		return nil, txError("check_tx", res.Code, res.Log)
	}
	return &BroadcastResult{Hash: res.Hash}, nil
}

// BroadcastTxCommit waits until tx is in a block and reports the
// DeliverTx outcome.
func (bc *BroadcastClient) BroadcastTxCommit(ctx context.Context, tx []byte) (*BroadcastResult, error) {
	type outcome struct {
		Code uint32 `json:"code"`
		Log  string `json:"log"`
	}
	var res struct {
		CheckTx   outcome `json:"check_tx"`
		DeliverTx outcome `json:"deliver_tx"`
		Hash      string  `json:"hash"`
		Height    string  `json:"height"`
	}
	if err := bc.call(ctx, "broadcast_tx_commit", map[string]string{"tx": base64.StdEncoding.EncodeToString(tx)}, &res); err != nil {
		return nil, err
	}
	if res.CheckTx.Code != 0 {
		return nil, txError("check_tx", res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.DeliverTx.Code != 0 {
		return nil, txError("deliver_tx", res.DeliverTx.Code, res.DeliverTx.Log)
	}
	height, _ := strconv.ParseInt(res.Height, 10, 64)
	return &BroadcastResult{Hash: res.Hash, Height: height}, nil
}

// BroadcastSignedTransaction marshals signedTx and broadcasts it, waiting
// for the block when commit is set.
func (bc *BroadcastClient) BroadcastSignedTransaction(ctx context.Context, signedTx *types.SignedTransaction, commit bool) (*BroadcastResult, error) {
	txBytes, err := json.Marshal(signedTx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if commit {
		return bc.BroadcastTxCommit(ctx, txBytes)
	}
	return bc.BroadcastTxSync(ctx, txBytes)
}

// ABCIQuery runs an application query and returns the response value.
func (bc *BroadcastClient) ABCIQuery(ctx context.Context, path string, data []byte) ([]byte, error) {
	var res struct {
		Response struct {
			Code  uint32 `json:"code"`
			Log   string `json:"log"`
			Value []byte `json:"value"` // base64 in JSON
		} `json:"response"`
	}
	params := map[string]any{"path": path, "data": hex.EncodeToString(data)}
	if err := bc.call(ctx, "abci_query", params, &res); err != nil {
		return nil, err
	}
	if res.Response.Code != 0 {
		return nil, txError("query", res.Response.Code, res.Response.Log)
	}
	return res.Response.Value, nil
}

// QueryTx looks a committed transaction up by its hex hash.
func (bc *BroadcastClient) QueryTx(ctx context.Context, txHash string) (map[string]any, error) {
	raw, err := hex.DecodeString(txHash)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash %q: %w", txHash, err)
	}
	var result map[string]any
	params := map[string]any{"hash": base64.StdEncoding.EncodeToString(raw)}
	if err := bc.call(ctx, "tx", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// call performs one JSON-RPC 2.0 request and decodes its result into out.
func (bc *BroadcastClient) call(ctx context.Context, method string, params any, out any) error {
	reqBytes, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bc.rpcAddr, bytes.NewReader(reqBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := bc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send RPC request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read RPC response: %w", err)
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    string `json:"data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &rpcResp); err != nil {
		return fmt.Errorf("failed to parse RPC response: %w (body: %s)", err, string(respBytes))
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("RPC error %d: %s (%s)", rpcResp.Error.Code, rpcResp.Error.Message, rpcResp.Error.Data)
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("RPC response has no result")
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
