package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/events"
)

// Context is passed to every Handler. It exposes the pool state, the
// triggering transaction, the host-supplied time and the payout mechanism.
type Context struct {
	State    core.State
	Tx       *core.Transaction
	Now      int64  // host time for this operation, ms
	Sequence uint64 // sequence number this operation commits as
	Payout   core.Payout
	Receipt  *core.Receipt

	pending []events.Event
}

// Emit queues an event. Queued events are delivered only after the
// operation commits, so observers never see reverted changes.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.pending = append(c.pending, events.Event{
		Type:     typ,
		TxID:     c.Tx.ID,
		Sequence: c.Sequence,
		Time:     c.Now,
		Data:     data,
	})
}

// LoadPool returns the pool singleton.
func (c *Context) LoadPool() (*core.Pool, error) {
	pool, err := c.State.GetPool()
	if errors.Is(err, core.ErrNotFound) {
		return nil, errors.New("pool not initialised")
	}
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	return pool, nil
}

// Executor applies transactions to the state using the global Handler
// registry. It is not safe for concurrent use.
type Executor struct {
	state   core.State
	emitter *events.Emitter
	payout  core.Payout
}

// NewExecutor creates an Executor with the given state, event emitter and
// payout mechanism. emitter may be nil.
func NewExecutor(state core.State, emitter *events.Emitter, payout core.Payout) *Executor {
	return &Executor{state: state, emitter: emitter, payout: payout}
}

// Execute applies a transaction whose sender has already been authenticated.
func (e *Executor) Execute(tx *core.Transaction, now int64) (*core.Receipt, error) {
	return e.execute(tx, now, false)
}

// ExecuteWithNonce additionally requires tx.Nonce to equal the sender's
// account nonce and consumes it. A failing transaction leaves the nonce
// unconsumed, like every other write it made.
func (e *Executor) ExecuteWithNonce(tx *core.Transaction, now int64) (*core.Receipt, error) {
	return e.execute(tx, now, true)
}

// execute runs tx under a snapshot: either every write commits or none does.
func (e *Executor) execute(tx *core.Transaction, now int64, checkNonce bool) (*core.Receipt, error) {
	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	ctx, err := e.applyTx(tx, now, checkNonce)
	if err == nil {
		err = e.state.Commit()
	}
	if err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return nil, err
	}

	if e.emitter != nil {
		for _, ev := range ctx.pending {
			e.emitter.Emit(ev)
		}
		e.emitter.Emit(events.Event{
			Type:     events.EventTxExecuted,
			TxID:     tx.ID,
			Sequence: ctx.Sequence,
			Time:     now,
			Data:     map[string]any{"type": string(tx.Type), "from": tx.From},
		})
	}
	return ctx.Receipt, nil
}

// applyTx checks the nonce if requested, dispatches to the handler, then
// stamps the pool with the new sequence number.
func (e *Executor) applyTx(tx *core.Transaction, now int64, checkNonce bool) (*Context, error) {
	if checkNonce {
		acc, err := e.state.GetAccount(tx.From)
		if err != nil {
			return nil, fmt.Errorf("get account: %w", err)
		}
		if acc.Nonce != tx.Nonce {
			return nil, fmt.Errorf("%w: expected %d got %d", core.ErrBadNonce, acc.Nonce, tx.Nonce)
		}
		if acc.Nonce == math.MaxUint64 {
			return nil, fmt.Errorf("nonce overflow for account %s", tx.From)
		}
		acc.Nonce++
		if err := e.state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	ctx := &Context{
		State:   e.state,
		Tx:      tx,
		Now:     now,
		Payout:  e.payout,
		Receipt: &core.Receipt{TxID: tx.ID, Type: tx.Type},
	}
	pool, err := ctx.LoadPool()
	if err != nil {
		return nil, err
	}
	ctx.Sequence = pool.Sequence + 1

	if err := globalRegistry.Execute(tx.Type, ctx, tx.Payload); err != nil {
		return nil, err
	}

	// Handlers may have rewritten the pool; stamp the latest copy.
	pool, err = ctx.LoadPool()
	if err != nil {
		return nil, err
	}
	pool.Sequence = ctx.Sequence
	if err := e.state.SetPool(pool); err != nil {
		return nil, err
	}
	ctx.Receipt.Sequence = ctx.Sequence
	ctx.Receipt.PoolBalance = pool.RewardBalance
	return ctx, nil
}
