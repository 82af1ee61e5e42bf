package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/explorer"
	"github.com/tolelom/levelpool/indexer"
	"github.com/tolelom/levelpool/levels"
	"github.com/tolelom/levelpool/pool"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	pool    *pool.Controller
	indexer *indexer.Indexer
	feed    *explorer.Store // nil → getEvents disabled
	chainID string          // expected chain_id; rejects transactions signed for another deployment
	clock   func() int64
}

// NewHandler creates an RPC Handler. clock supplies the operation time in
// milliseconds; nil means the wall clock.
func NewHandler(ctrl *pool.Controller, idx *indexer.Indexer, feed *explorer.Store, chainID string, clock func() int64) *Handler {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}
	return &Handler{pool: ctrl, indexer: idx, feed: feed, chainID: chainID, clock: clock}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "sendTx":
		return h.sendTx(req)

	case "getSession":
		return h.getSession(req)

	case "getPlayerSessions":
		return h.getPlayerSessions(req)

	case "getPlayerRewards":
		return h.getPlayerRewards(req)

	case "getPool":
		return h.getPool(req)

	case "getBalance":
		return h.getBalance(req)

	case "getLevel":
		return h.getLevel(req)

	case "getClaims":
		return h.getClaims(req)

	case "getSessionByFingerprint":
		return h.getSessionByFingerprint(req)

	case "getEvents":
		return h.getEvents(req)

	case "getStateRoot":
		return h.getStateRoot(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// parseParams decodes req.Params into v. Missing params decode as {}.
func parseParams(req Request, v any) error {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return nil
	}
	return json.Unmarshal(req.Params, v)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := tx.Verify(); err != nil {
		return errResponse(req.ID, CodeUnauthorized, err.Error())
	}
	rec, err := h.pool.ApplyTx(&tx, h.clock())
	if err != nil {
		return opErrResponse(req.ID, err)
	}
	return okResponse(req.ID, rec)
}

func (h *Handler) getSession(req Request) Response {
	var params struct {
		ID uint64 `json:"id"`
	}
	if err := parseParams(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == 0 {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	sess, err := h.pool.Session(params.ID)
	if err != nil {
		return opErrResponse(req.ID, err)
	}
	return okResponse(req.ID, sess)
}

func (h *Handler) getPlayerSessions(req Request) Response {
	var params struct {
		Player string `json:"player"`
	}
	if err := parseParams(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Player == "" {
		return errResponse(req.ID, CodeInvalidParams, "player is required")
	}
	ids, err := h.pool.PlayerSessions(params.Player)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getPlayerRewards(req Request) Response {
	var params struct {
		Player string `json:"player"`
	}
	if err := parseParams(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Player == "" {
		return errResponse(req.ID, CodeInvalidParams, "player is required")
	}
	total, err := h.pool.PlayerRewards(params.Player)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"player": params.Player, "lifetime_rewards": total})
}

func (h *Handler) getPool(req Request) Response {
	stats, err := h.pool.Stats()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, stats)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := parseParams(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.pool.Account(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) getLevel(req Request) Response {
	var params struct {
		Level uint32 `json:"level"`
	}
	if err := parseParams(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"level":          params.Level,
		"valid":          levels.Valid(params.Level),
		"expected_units": h.pool.ExpectedUnits(params.Level),
		"reward":         h.pool.LevelReward(params.Level),
		"duration_ms":    levels.LevelDuration,
		"max_level":      levels.MaxLevel,
	})
}

func (h *Handler) getClaims(req Request) Response {
	var params struct {
		Player string `json:"player"`
	}
	if err := parseParams(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Player == "" {
		return errResponse(req.ID, CodeInvalidParams, "player is required")
	}
	claims, err := h.indexer.ClaimsByPlayer(params.Player)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, claims)
}

func (h *Handler) getSessionByFingerprint(req Request) Response {
	var params struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := parseParams(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	fp, err := core.FingerprintFromHex(params.Fingerprint)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	comp, err := h.indexer.CompletionByFingerprint(fp.Hex())
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeInvalidParams, "unknown fingerprint")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	sess, err := h.pool.Session(comp.SessionID)
	if err != nil {
		return opErrResponse(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"completion": comp, "session": sess})
}

func (h *Handler) getEvents(req Request) Response {
	if h.feed == nil {
		return errResponse(req.ID, CodeInternalError, "event feed disabled")
	}
	var params struct {
		SessionID uint64 `json:"session_id"`
		Player    string `json:"player"`
		Limit     int    `json:"limit"`
	}
	if err := parseParams(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var (
		rows []explorer.Row
		err  error
	)
	switch {
	case params.SessionID != 0:
		rows, err = h.feed.BySession(params.SessionID)
	case params.Player != "":
		rows, err = h.feed.ByPlayer(params.Player, params.Limit)
	default:
		rows, err = h.feed.Recent(params.Limit)
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, rows)
}

func (h *Handler) getStateRoot(req Request) Response {
	stats, err := h.pool.Stats()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"root": h.pool.StateRoot(), "sequence": stats.Sequence})
}
