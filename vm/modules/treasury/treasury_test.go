package treasury_test

import (
	"testing"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/events"
	"github.com/tolelom/levelpool/internal/testutil"
	"github.com/tolelom/levelpool/vm"
	"github.com/tolelom/levelpool/vm/modules/economy"

	_ "github.com/tolelom/levelpool/vm/modules/treasury"
)

func setup(t *testing.T, balance uint64) (core.State, *vm.Executor, *[]events.EventType) {
	t.Helper()
	state := testutil.NewStateDB()
	_ = state.SetPool(&core.Pool{Owner: "owner", NextSessionID: 1, RewardBalance: balance})
	if err := state.Commit(); err != nil {
		t.Fatal(err)
	}
	em := events.NewEmitter()
	var got []events.EventType
	em.SubscribeAll(func(e events.Event) {
		if e.Type != events.EventTxExecuted {
			got = append(got, e.Type)
		}
	})
	return state, vm.NewExecutor(state, em, economy.LedgerPayout{}), &got
}

func exec(t *testing.T, ex *vm.Executor, typ core.TxType, payload any) error {
	t.Helper()
	tx, err := core.NewTransaction("", typ, "owner", 0, 1, payload)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ex.Execute(tx, 1)
	return err
}

func TestPauseIsIdempotent(t *testing.T) {
	state, ex, got := setup(t, 0)
	for i := 0; i < 2; i++ {
		if err := exec(t, ex, core.TxPause, struct{}{}); err != nil {
			t.Fatal(err)
		}
	}
	pool, _ := state.GetPool()
	if !pool.Paused {
		t.Fatal("pool should be paused")
	}
	if len(*got) != 1 || (*got)[0] != events.EventPoolPaused {
		t.Errorf("events: %v", *got)
	}
	// Every accepted call still takes a sequence number.
	if pool.Sequence != 2 {
		t.Errorf("sequence: got %d want 2", pool.Sequence)
	}
	if err := exec(t, ex, core.TxUnpause, struct{}{}); err != nil {
		t.Fatal(err)
	}
	if (*got)[len(*got)-1] != events.EventPoolUnpaused {
		t.Errorf("events: %v", *got)
	}
}

func TestFundOverflow(t *testing.T) {
	state, ex, _ := setup(t, ^uint64(0)-5)
	if err := exec(t, ex, core.TxFund, core.AmountPayload{Amount: 6}); core.Kind(err) != core.KindResource {
		t.Fatalf("got %v, want overflow", err)
	}
	pool, _ := state.GetPool()
	if pool.RewardBalance != ^uint64(0)-5 {
		t.Errorf("balance changed to %d", pool.RewardBalance)
	}
}

func TestWithdrawPaysOwner(t *testing.T) {
	state, ex, got := setup(t, 300)
	if err := exec(t, ex, core.TxWithdraw, core.AmountPayload{Amount: 300}); err != nil {
		t.Fatal(err)
	}
	acc, _ := state.GetAccount("owner")
	pool, _ := state.GetPool()
	if acc.Balance != 300 || pool.RewardBalance != 0 {
		t.Errorf("owner %d, pool %d", acc.Balance, pool.RewardBalance)
	}
	if len(*got) != 1 || (*got)[0] != events.EventAdminWithdrawal {
		t.Errorf("events: %v", *got)
	}
}
