// Package pool is the entry point to the reward pool. Controller serialises
// every mutating operation behind one write lock and applies it through the
// vm executor, so each call commits completely or not at all.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/events"
	"github.com/tolelom/levelpool/levels"
	"github.com/tolelom/levelpool/vm"

	_ "github.com/tolelom/levelpool/vm/modules/session"
	_ "github.com/tolelom/levelpool/vm/modules/treasury"
)

// Controller owns the pool state. It is safe for concurrent use.
type Controller struct {
	mu    sync.RWMutex
	state core.State
	exec  *vm.Executor
}

// New returns a Controller over state. The pool singleton must already
// exist (see config.InitPool). emitter may be nil.
func New(state core.State, emitter *events.Emitter, payout core.Payout) *Controller {
	return &Controller{
		state: state,
		exec:  vm.NewExecutor(state, emitter, payout),
	}
}

// ApplyTx applies a signed transaction. The caller must have verified the
// signature; the sender's nonce is checked and consumed here.
func (c *Controller) ApplyTx(tx *core.Transaction, now int64) (*core.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.exec.ExecuteWithNonce(tx, now)
	if err != nil {
		logFailure(tx, err)
		return nil, err
	}
	return rec, nil
}

// apply runs one operation for an already authenticated caller.
func (c *Controller) apply(caller string, typ core.TxType, payload any, now int64) (*core.Receipt, error) {
	tx, err := core.NewTransaction("", typ, caller, 0, now, payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.exec.Execute(tx, now)
	if err != nil {
		logFailure(tx, err)
		return nil, err
	}
	return rec, nil
}

func logFailure(tx *core.Transaction, err error) {
	log.Debug().
		Str("component", "pool").
		Str("type", string(tx.Type)).
		Str("from", tx.From).
		Str("kind", string(core.Kind(err))).
		Err(err).
		Msg("operation rejected")
}

// ---- Player operations ----

// Start opens a new session for caller and returns its id.
func (c *Controller) Start(caller string, now int64) (uint64, error) {
	rec, err := c.apply(caller, core.TxStartSession, core.StartSessionPayload{}, now)
	if err != nil {
		return 0, err
	}
	return rec.SessionID, nil
}

// CompleteLevel submits a level completion. The receipt carries the
// fingerprint that was registered, the next level and whether the session
// is now complete.
func (c *Controller) CompleteLevel(caller string, sessionID uint64, level uint32, score, units uint64, now int64) (*core.Receipt, error) {
	return c.apply(caller, core.TxCompleteLevel, core.CompleteLevelPayload{
		SessionID:      sessionID,
		Level:          level,
		Score:          score,
		UnitsDestroyed: units,
	}, now)
}

// Abandon ends an active session early; its pending reward stays claimable.
func (c *Controller) Abandon(caller string, sessionID uint64, now int64) error {
	_, err := c.apply(caller, core.TxAbandon, core.SessionPayload{SessionID: sessionID}, now)
	return err
}

// Claim pays the session's pending reward to caller and returns the amount.
func (c *Controller) Claim(caller string, sessionID uint64, now int64) (uint64, error) {
	rec, err := c.apply(caller, core.TxClaim, core.SessionPayload{SessionID: sessionID}, now)
	if err != nil {
		return 0, err
	}
	return rec.Amount, nil
}

// ---- Admin operations ----

// Fund adds amount to the payable balance.
func (c *Controller) Fund(caller string, amount uint64, now int64) error {
	_, err := c.apply(caller, core.TxFund, core.AmountPayload{Amount: amount}, now)
	return err
}

// Withdraw pays amount from the pool to the owner.
func (c *Controller) Withdraw(caller string, amount uint64, now int64) error {
	_, err := c.apply(caller, core.TxWithdraw, core.AmountPayload{Amount: amount}, now)
	return err
}

// Pause blocks player operations until Unpause.
func (c *Controller) Pause(caller string, now int64) error {
	_, err := c.apply(caller, core.TxPause, struct{}{}, now)
	return err
}

func (c *Controller) Unpause(caller string, now int64) error {
	_, err := c.apply(caller, core.TxUnpause, struct{}{}, now)
	return err
}

// ---- Views ----

// Session returns a copy of session id.
func (c *Controller) Session(id uint64) (*core.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sess, err := c.state.GetSession(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("session %d: %w", id, core.ErrNoSuchSession)
	}
	return sess, err
}

// PlayerSessions lists the ids of every session player has started, oldest
// first. Unknown players get an empty list.
func (c *Controller) PlayerSessions(player string) ([]uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.GetPlayerSessions(player)
}

// PlayerRewards returns the rewards player has accrued over all finished
// sessions, claimed or not.
func (c *Controller) PlayerRewards(player string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.GetPlayerRewards(player)
}

// Stats returns a copy of the pool singleton.
func (c *Controller) Stats() (*core.Pool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pool, err := c.state.GetPool()
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	return pool, nil
}

// Account returns the payout account of address, including its tx nonce.
func (c *Controller) Account(address string) (*core.Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.GetAccount(address)
}

// Balance returns the tokens paid out to address so far.
func (c *Controller) Balance(address string) (uint64, error) {
	acc, err := c.Account(address)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (c *Controller) ExpectedUnits(level uint32) uint64 { return levels.ExpectedUnits(level) }

func (c *Controller) LevelReward(level uint32) uint64 { return levels.Reward(level) }

// StateRoot returns the deterministic hash of the committed pool state.
func (c *Controller) StateRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.ComputeRoot()
}
