package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tolelom/levelpool/internal/testutil"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.Genesis.Owner = "abcd"
	cfg.Genesis.InitialBalance = 5_000
	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Genesis.Owner != "abcd" || loaded.Genesis.InitialBalance != 5_000 {
		t.Errorf("loaded genesis: %+v", loaded.Genesis)
	}
	if loaded.RPCPort != 8545 {
		t.Errorf("rpc port: got %d want 8545", loaded.RPCPort)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	data := []byte("data_dir: /srv/pool\nrpc_port: 7000\ngenesis:\n  owner: cafe\n  initial_balance: 250\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/srv/pool" || cfg.RPCPort != 7000 {
		t.Errorf("loaded: %+v", cfg)
	}
	if cfg.Genesis.Owner != "cafe" || cfg.Genesis.InitialBalance != 250 {
		t.Errorf("genesis: %+v", cfg.Genesis)
	}
	// Unset keys keep their defaults.
	if cfg.Genesis.ChainID != "levelpool-dev" || cfg.LogLevel != "info" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("POOL_RPC_PORT", "9000")
	t.Setenv("POOL_OWNER", "beef")
	t.Setenv("POOL_INITIAL_BALANCE", "42")

	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/pool"
	if err := ApplyEnv(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.RPCPort != 9000 {
		t.Errorf("rpc port: got %d want 9000", cfg.RPCPort)
	}
	if cfg.Genesis.Owner != "beef" || cfg.Genesis.InitialBalance != 42 {
		t.Errorf("genesis: %+v", cfg.Genesis)
	}
	if cfg.DataDir != "/var/lib/pool" {
		t.Errorf("unset env var overwrote data dir: %q", cfg.DataDir)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("missing owner should fail validation")
	}
	cfg.Genesis.Owner = "abcd"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config: %v", err)
	}
}

func TestInitPool(t *testing.T) {
	state := testutil.NewStateDB()
	cfg := DefaultConfig()
	cfg.Genesis.Owner = "owner"
	cfg.Genesis.InitialBalance = 1_000

	pool, err := InitPool(cfg, state)
	if err != nil {
		t.Fatal(err)
	}
	if pool.NextSessionID != 1 || pool.RewardBalance != 1_000 {
		t.Errorf("fresh pool: %+v", pool)
	}

	// Second start keeps the stored pool and ignores the initial balance.
	cfg.Genesis.InitialBalance = 99
	pool, err = InitPool(cfg, state)
	if err != nil {
		t.Fatal(err)
	}
	if pool.RewardBalance != 1_000 {
		t.Errorf("reinit changed balance to %d", pool.RewardBalance)
	}

	cfg.Genesis.Owner = "someone-else"
	if _, err := InitPool(cfg, state); err == nil {
		t.Error("changing the owner must fail")
	}
}
