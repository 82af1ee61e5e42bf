package config

import (
	"errors"
	"fmt"

	"github.com/tolelom/levelpool/core"
)

// InitPool creates the pool singleton from the genesis config on a fresh
// store and commits it. On an existing store it returns the stored pool;
// the owner is immutable, so a different configured owner is an error.
func InitPool(cfg *Config, state core.State) (*core.Pool, error) {
	pool, err := state.GetPool()
	if err == nil {
		if pool.Owner != cfg.Genesis.Owner {
			return nil, fmt.Errorf("configured owner %s differs from pool owner %s", cfg.Genesis.Owner, pool.Owner)
		}
		return pool, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	if cfg.Genesis.Owner == "" {
		return nil, errors.New("genesis owner required")
	}

	pool = &core.Pool{
		Owner:         cfg.Genesis.Owner,
		RewardBalance: cfg.Genesis.InitialBalance,
		NextSessionID: 1,
	}
	if err := state.SetPool(pool); err != nil {
		return nil, err
	}
	if err := state.Commit(); err != nil {
		return nil, fmt.Errorf("commit genesis pool: %w", err)
	}
	return pool, nil
}
