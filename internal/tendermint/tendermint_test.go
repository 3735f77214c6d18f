package tendermint

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	abci "github.com/tendermint/tendermint/abci/types"

	"stryd.mini/ledger/internal/challenge"
)

// fakeRPC answers every JSON-RPC call with the result registered for its
// method and records the params it saw.
func fakeRPC(t *testing.T, results map[string]string) (*httptest.Server, map[string]json.RawMessage) {
	t.Helper()
	seen := map[string]json.RawMessage{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		seen[req.Method] = req.Params
		result, ok := results[req.Method]
		if !ok {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found","data":""}}`))
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestBroadcastTxSync(t *testing.T) {
	srv, seen := fakeRPC(t, map[string]string{
		"broadcast_tx_sync": `{"code":0,"log":"","hash":"ABCD"}`,
	})
	bc := NewBroadcastClient(srv.URL)

	res, err := bc.BroadcastTxSync(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("BroadcastTxSync: %v", err)
	}
	if res.Hash != "ABCD" {
		t.Fatalf("hash = %s", res.Hash)
	}

	var params map[string]string
	if err := json.Unmarshal(seen["broadcast_tx_sync"], &params); err != nil {
		t.Fatalf("params: %v", err)
	}
	if params["tx"] != base64.StdEncoding.EncodeToString([]byte("payload")) {
		t.Fatalf("tx param = %s", params["tx"])
	}
}

func TestBroadcastTxCommitMapsCodes(t *testing.T) {
	srv, _ := fakeRPC(t, map[string]string{
		"broadcast_tx_commit": `{"check_tx":{"code":0},"deliver_tx":{"code":13,"log":"already joined"},"hash":"FF","height":"7"}`,
	})
	bc := NewBroadcastClient(srv.URL)

	_, err := bc.BroadcastTxCommit(context.Background(), []byte("tx"))
	if !errors.Is(err, challenge.ErrAlreadyJoined) {
		t.Fatalf("got %v, want ErrAlreadyJoined", err)
	}
	var txErr *TxError
	if !errors.As(err, &txErr) || txErr.Phase != "deliver_tx" || txErr.Code != 13 {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestBroadcastTxCommitHeight(t *testing.T) {
	srv, _ := fakeRPC(t, map[string]string{
		"broadcast_tx_commit": `{"check_tx":{"code":0},"deliver_tx":{"code":0},"hash":"FF","height":"7"}`,
	})
	res, err := NewBroadcastClient(srv.URL).BroadcastTxCommit(context.Background(), []byte("tx"))
	if err != nil {
		t.Fatalf("BroadcastTxCommit: %v", err)
	}
	if res.Height != 7 || res.Hash != "FF" {
		t.Fatalf("result %+v", res)
	}
}

func TestABCIQuery(t *testing.T) {
	value := base64.StdEncoding.EncodeToString([]byte(`{"ok":true}`))
	srv, seen := fakeRPC(t, map[string]string{
		"abci_query": `{"response":{"code":0,"value":"` + value + `"}}`,
	})
	got, err := NewBroadcastClient(srv.URL).ABCIQuery(context.Background(), "/address", []byte{0xde, 0xad})
	if err != nil {
		t.Fatalf("ABCIQuery: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Fatalf("value = %s", got)
	}
	var params map[string]string
	_ = json.Unmarshal(seen["abci_query"], &params)
	if params["path"] != "/address" || params["data"] != "dead" {
		t.Fatalf("params = %v", params)
	}
}

func TestABCIQueryNotFound(t *testing.T) {
	srv, _ := fakeRPC(t, map[string]string{
		"abci_query": `{"response":{"code":11,"log":"challenge not found"}}`,
	})
	_, err := NewBroadcastClient(srv.URL).ABCIQuery(context.Background(), "/challenge", nil)
	if !errors.Is(err, challenge.ErrChallengeNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestRPCError(t *testing.T) {
	srv, _ := fakeRPC(t, map[string]string{})
	if _, err := NewBroadcastClient(srv.URL).BroadcastTxSync(context.Background(), nil); err == nil {
		t.Fatal("expected RPC error")
	}
}

func TestABCIServerLifecycle(t *testing.T) {
	if _, err := NewABCIServer(nil, &Config{}); err == nil {
		t.Fatal("nil app accepted")
	}

	dir, err := os.MkdirTemp("", "abci")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "s.sock")
	// stale socket from a previous run
	if err := os.WriteFile(sock, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	srv, err := NewABCIServer(abci.NewBaseApplication(), &Config{SocketAddress: "unix://" + sock})
	if err != nil {
		t.Fatalf("NewABCIServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !srv.IsRunning() {
		t.Fatal("server not running after Start")
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Fatalf("socket file left behind: %v", err)
	}
}

func TestTendermintHome(t *testing.T) {
	t.Setenv("TMHOME", "/tmp/tm-home")
	if got := TendermintHome(); got != "/tmp/tm-home" {
		t.Fatalf("TendermintHome = %s", got)
	}
	cmd := GetTendermintCommand("", "")
	want := []string{"tendermint", "node", "--home", "/tmp/tm-home", "--proxy_app", DefaultSocketAddress}
	if len(cmd.Args) != len(want) {
		t.Fatalf("args = %v", cmd.Args)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Fatalf("args = %v", cmd.Args)
		}
	}
}
