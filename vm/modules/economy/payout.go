// Package economy implements the pool's payout mechanism: paid-out tokens
// land in per-address accounts held in the same state as the pool.
package economy

import (
	"errors"
	"fmt"

	"github.com/tolelom/levelpool/core"
)

// LedgerPayout credits recipients' state accounts. Because it writes through
// the operation's state, a payout is never partially applied.
type LedgerPayout struct{}

// Pay credits amount to recipient's account.
func (LedgerPayout) Pay(state core.State, recipient string, amount uint64) error {
	if recipient == "" {
		return errors.New("payout recipient required")
	}
	if amount == 0 {
		return core.ErrZeroAmount
	}
	acc, err := state.GetAccount(recipient)
	if err != nil {
		return fmt.Errorf("payout account %q: %w", recipient, err)
	}
	if acc.Balance > ^uint64(0)-amount {
		return fmt.Errorf("payout to %q: %w", recipient, core.ErrOverflow)
	}
	acc.Balance += amount
	return state.SetAccount(acc)
}
