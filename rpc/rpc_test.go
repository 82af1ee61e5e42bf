package rpc_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tolelom/levelpool/config"
	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/events"
	"github.com/tolelom/levelpool/explorer"
	"github.com/tolelom/levelpool/indexer"
	"github.com/tolelom/levelpool/internal/testutil"
	"github.com/tolelom/levelpool/pool"
	"github.com/tolelom/levelpool/rpc"
	"github.com/tolelom/levelpool/storage"
	"github.com/tolelom/levelpool/vm/modules/economy"
	"github.com/tolelom/levelpool/wallet"
)

const chainID = "levelpool-test"

type fixture struct {
	t       *testing.T
	handler *rpc.Handler
	owner   *wallet.Wallet
	player  *wallet.Wallet
	now     int64
}

// newFixture builds a handler backed by in-memory state, a funded pool and
// an in-memory event feed. The handler's clock reads f.now.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t}
	f.owner, _ = wallet.Generate(chainID)
	f.player, _ = wallet.Generate(chainID)

	db := testutil.NewMemDB()
	state := storage.NewStateDB(db)
	cfg := config.DefaultConfig()
	cfg.Genesis.ChainID = chainID
	cfg.Genesis.Owner = f.owner.PubKey()
	cfg.Genesis.InitialBalance = 1_000
	if _, err := config.InitPool(cfg, state); err != nil {
		t.Fatal(err)
	}

	em := events.NewEmitter()
	idx := indexer.New(db, em)
	feed, err := explorer.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { feed.Close() })
	if err := feed.Migrate(); err != nil {
		t.Fatal(err)
	}
	feed.Attach(em)

	ctrl := pool.New(state, em, economy.LedgerPayout{})
	f.handler = rpc.NewHandler(ctrl, idx, feed, chainID, func() int64 { return f.now })
	return f
}

func dispatch(handler *rpc.Handler, method string, params any) rpc.Response {
	raw, _ := json.Marshal(params)
	return handler.Dispatch(rpc.Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  raw,
	})
}

// send dispatches a freshly built transaction; it takes a wallet helper's
// results directly.
func (f *fixture) send(tx *core.Transaction, err error) rpc.Response {
	f.t.Helper()
	if err != nil {
		f.t.Fatal(err)
	}
	return dispatch(f.handler, "sendTx", tx)
}

func receipt(t *testing.T, resp rpc.Response) *core.Receipt {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	rec, ok := resp.Result.(*core.Receipt)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	return rec
}

func TestPlayThroughRPC(t *testing.T) {
	f := newFixture(t)
	p := f.player

	f.now = 1_000
	start := receipt(t, f.send(p.StartSession(0, f.now)))
	if start.SessionID != 1 {
		t.Fatalf("session id: %d", start.SessionID)
	}

	f.now = 2_000
	lvl := receipt(t, f.send(p.CompleteLevel(1, f.now, start.SessionID, 1, 50, 11)))
	if lvl.Level != 2 || lvl.Fingerprint == "" {
		t.Errorf("level receipt: %+v", lvl)
	}

	f.now = 3_000
	claim := receipt(t, f.send(p.Claim(2, f.now, start.SessionID)))
	if claim.Amount != 100 || claim.PoolBalance != 900 {
		t.Errorf("claim receipt: %+v", claim)
	}

	resp := dispatch(f.handler, "getBalance", map[string]string{"address": p.PubKey()})
	bal := resp.Result.(map[string]any)
	if bal["balance"] != uint64(100) || bal["nonce"] != uint64(3) {
		t.Errorf("balance: %v", bal)
	}

	resp = dispatch(f.handler, "getClaims", map[string]string{"player": p.PubKey()})
	if claims, ok := resp.Result.([]indexer.Claim); !ok || len(claims) != 1 {
		t.Errorf("claims: %#v", resp.Result)
	}

	resp = dispatch(f.handler, "getSessionByFingerprint", map[string]string{"fingerprint": lvl.Fingerprint})
	if resp.Error != nil {
		t.Fatalf("getSessionByFingerprint: %s", resp.Error.Message)
	}
	byFP := resp.Result.(map[string]any)
	if sess := byFP["session"].(*core.Session); sess.ID != start.SessionID {
		t.Errorf("fingerprint lookup session: %+v", sess)
	}

	resp = dispatch(f.handler, "getEvents", map[string]any{"session_id": start.SessionID})
	rows, ok := resp.Result.([]explorer.Row)
	if !ok || len(rows) != 3 {
		t.Fatalf("session events: %#v", resp.Result)
	}
	if rows[0].Type != events.EventSessionStarted || rows[2].Type != events.EventRewardsClaimed {
		t.Errorf("event order: %s .. %s", rows[0].Type, rows[2].Type)
	}

	resp = dispatch(f.handler, "getPlayerSessions", map[string]string{"player": p.PubKey()})
	if ids, ok := resp.Result.([]uint64); !ok || len(ids) != 1 {
		t.Errorf("player sessions: %#v", resp.Result)
	}
}

func TestSendTxRejections(t *testing.T) {
	f := newFixture(t)

	other, _ := wallet.Generate("another-chain")
	resp := f.send(other.StartSession(0, 0))
	if resp.Error == nil || resp.Error.Code != rpc.CodeInvalidParams {
		t.Errorf("chain mismatch: %+v", resp.Error)
	}

	tx, err := f.player.StartSession(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	tx.Nonce = 9 // breaks the signature
	resp = dispatch(f.handler, "sendTx", tx)
	if resp.Error == nil || resp.Error.Code != rpc.CodeUnauthorized {
		t.Errorf("bad signature: %+v", resp.Error)
	}

	// Only the owner may fund.
	resp = f.send(f.player.Fund(0, 0, 10))
	if resp.Error == nil || resp.Error.Code != rpc.CodeAuthorization {
		t.Errorf("player fund: %+v", resp.Error)
	}
	receipt(t, f.send(f.owner.Fund(0, 0, 10)))
}

func TestOperationErrorsCarryKind(t *testing.T) {
	f := newFixture(t)
	start := receipt(t, f.send(f.player.StartSession(0, 0)))

	resp := f.send(f.player.CompleteLevel(1, 0, start.SessionID, 1, 0, 12))
	if resp.Error == nil || resp.Error.Code != rpc.CodeValidation || resp.Error.Data.Kind != core.KindValidation {
		t.Fatalf("invalid proof: %+v", resp.Error)
	}
	if resp.Error.Data.Retryable {
		t.Error("invalid proof is not retryable")
	}

	f.now = 60_001
	resp = f.send(f.player.CompleteLevel(1, 0, start.SessionID, 1, 0, 11))
	if resp.Error == nil || resp.Error.Code != rpc.CodeValidation || !resp.Error.Data.Retryable {
		t.Errorf("expired: %+v", resp.Error)
	}

	resp = dispatch(f.handler, "getSession", map[string]uint64{"id": 42})
	if resp.Error == nil || resp.Error.Code != rpc.CodeState {
		t.Errorf("unknown session: %+v", resp.Error)
	}
}

func TestViewsAndUnknownMethod(t *testing.T) {
	f := newFixture(t)

	resp := dispatch(f.handler, "getLevel", map[string]uint32{"level": 4})
	lvl := resp.Result.(map[string]any)
	if lvl["expected_units"] != uint64(44) || lvl["valid"] != true {
		t.Errorf("getLevel: %v", lvl)
	}

	resp = dispatch(f.handler, "getPool", nil)
	if p, ok := resp.Result.(*core.Pool); !ok || p.RewardBalance != 1_000 || p.Owner != f.owner.PubKey() {
		t.Errorf("getPool: %#v", resp.Result)
	}

	resp = dispatch(f.handler, "getStateRoot", nil)
	if root := resp.Result.(map[string]any)["root"].(string); len(root) != 64 {
		t.Errorf("state root: %q", root)
	}

	resp = dispatch(f.handler, "getPlayerRewards", map[string]string{"player": "nobody"})
	if resp.Result.(map[string]any)["lifetime_rewards"] != uint64(0) {
		t.Errorf("lifetime rewards: %v", resp.Result)
	}

	resp = dispatch(f.handler, "noSuchMethod", nil)
	if resp.Error == nil || resp.Error.Code != rpc.CodeMethodNotFound {
		t.Errorf("unknown method: %+v", resp.Error)
	}
}

func TestHTTPServer(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(rpc.NewServer(":0", f.handler, "secret"))
	defer srv.Close()

	post := func(token string) (*http.Response, rpc.Response) {
		t.Helper()
		body, _ := json.Marshal(rpc.Request{JSONRPC: "2.0", ID: 7, Method: "getPool"})
		req, _ := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		httpResp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer httpResp.Body.Close()
		var resp rpc.Response
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		return httpResp, resp
	}

	_, resp := post("")
	if resp.Error == nil || resp.Error.Code != rpc.CodeUnauthorized {
		t.Errorf("missing token: %+v", resp.Error)
	}

	httpResp, resp := post("secret")
	if resp.Error != nil {
		t.Fatalf("authorised request: %s", resp.Error.Message)
	}
	if httpResp.Header.Get("X-Request-Id") == "" {
		t.Error("missing request id header")
	}
	result := resp.Result.(map[string]any)
	if result["reward_balance"] != float64(1_000) {
		t.Errorf("pool over HTTP: %v", result)
	}

	getResp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status: %d", getResp.StatusCode)
	}
}
