// Package treasury implements the owner-only operations on the pool's
// payable balance and its pause switch. None of them are blocked by pause.
package treasury

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/events"
	"github.com/tolelom/levelpool/vm"
)

func init() {
	vm.Register(core.TxFund, handleFund)
	vm.Register(core.TxWithdraw, handleWithdraw)
	vm.Register(core.TxPause, handlePause)
	vm.Register(core.TxUnpause, handleUnpause)
}

func ownerPool(ctx *vm.Context) (*core.Pool, error) {
	pool, err := ctx.LoadPool()
	if err != nil {
		return nil, err
	}
	if ctx.Tx.From != pool.Owner {
		return nil, core.ErrNotOwner
	}
	return pool, nil
}

func decodeAmount(payload json.RawMessage) (uint64, error) {
	var p core.AmountPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, fmt.Errorf("decode amount payload: %w", err)
	}
	if p.Amount == 0 {
		return 0, core.ErrZeroAmount
	}
	return p.Amount, nil
}

func handleFund(ctx *vm.Context, payload json.RawMessage) error {
	pool, err := ownerPool(ctx)
	if err != nil {
		return err
	}
	amount, err := decodeAmount(payload)
	if err != nil {
		return err
	}
	if pool.RewardBalance > ^uint64(0)-amount {
		return fmt.Errorf("fund %d onto %d: %w", amount, pool.RewardBalance, core.ErrOverflow)
	}
	pool.RewardBalance += amount
	if err := ctx.State.SetPool(pool); err != nil {
		return err
	}

	ctx.Receipt.Amount = amount
	ctx.Emit(events.EventPoolFunded, map[string]any{
		"funder":  ctx.Tx.From,
		"amount":  amount,
		"balance": pool.RewardBalance,
	})
	return nil
}

func handleWithdraw(ctx *vm.Context, payload json.RawMessage) error {
	pool, err := ownerPool(ctx)
	if err != nil {
		return err
	}
	amount, err := decodeAmount(payload)
	if err != nil {
		return err
	}
	if amount > pool.RewardBalance {
		return fmt.Errorf("withdraw %d, pool holds %d: %w", amount, pool.RewardBalance, core.ErrInsufficientBalance)
	}
	if ctx.Payout == nil {
		return errors.New("no payout mechanism configured")
	}
	pool.RewardBalance -= amount
	if err := ctx.State.SetPool(pool); err != nil {
		return err
	}
	if err := ctx.Payout.Pay(ctx.State, pool.Owner, amount); err != nil {
		return fmt.Errorf("pay out withdrawal: %w", err)
	}

	ctx.Receipt.Amount = amount
	ctx.Emit(events.EventAdminWithdrawal, map[string]any{
		"to":      pool.Owner,
		"amount":  amount,
		"balance": pool.RewardBalance,
	})
	return nil
}

func handlePause(ctx *vm.Context, _ json.RawMessage) error {
	return setPaused(ctx, true)
}

func handleUnpause(ctx *vm.Context, _ json.RawMessage) error {
	return setPaused(ctx, false)
}

// setPaused is idempotent: pausing a paused pool succeeds without an event.
func setPaused(ctx *vm.Context, paused bool) error {
	pool, err := ownerPool(ctx)
	if err != nil {
		return err
	}
	if pool.Paused == paused {
		return nil
	}
	pool.Paused = paused
	if err := ctx.State.SetPool(pool); err != nil {
		return err
	}
	typ := events.EventPoolUnpaused
	if paused {
		typ = events.EventPoolPaused
	}
	ctx.Emit(typ, map[string]any{"by": ctx.Tx.From})
	return nil
}
