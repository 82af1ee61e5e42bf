package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// GenesisConfig describes the pool created on a fresh data directory.
type GenesisConfig struct {
	ChainID        string `json:"chain_id" yaml:"chain_id" env:"POOL_CHAIN_ID"`
	Owner          string `json:"owner" yaml:"owner" env:"POOL_OWNER"` // pubkey hex of the admin
	InitialBalance uint64 `json:"initial_balance" yaml:"initial_balance" env:"POOL_INITIAL_BALANCE"`
}

// Config holds all node configuration.
type Config struct {
	NodeID       string        `json:"node_id" yaml:"node_id" env:"POOL_NODE_ID"`
	DataDir      string        `json:"data_dir" yaml:"data_dir" env:"POOL_DATA_DIR"`
	RPCPort      int           `json:"rpc_port" yaml:"rpc_port" env:"POOL_RPC_PORT"`
	RPCAuthToken string        `json:"rpc_auth_token,omitempty" yaml:"rpc_auth_token,omitempty" env:"POOL_RPC_AUTH_TOKEN"` // empty → no auth
	ExplorerDB   string        `json:"explorer_db,omitempty" yaml:"explorer_db,omitempty" env:"POOL_EXPLORER_DB"`          // empty → <data_dir>/explorer.db
	LogLevel     string        `json:"log_level" yaml:"log_level" env:"POOL_LOG_LEVEL"`
	Genesis      GenesisConfig `json:"genesis" yaml:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:   "pool0",
		DataDir:  "./data",
		RPCPort:  8545,
		LogLevel: "info",
		Genesis: GenesisConfig{
			ChainID: "levelpool-dev",
		},
	}
}

// Load reads a config file from path on top of the defaults. Files ending
// in .yaml or .yml are YAML; anything else is JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ApplyEnv overrides cfg with any POOL_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes the config to path, as YAML or formatted JSON by extension.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports configuration that would stop the node from serving.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Genesis.ChainID == "" {
		return errors.New("genesis.chain_id is required")
	}
	if c.Genesis.Owner == "" {
		return errors.New("genesis.owner is required")
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port %d out of range", c.RPCPort)
	}
	return nil
}

// ExplorerPath returns the sqlite file backing the explorer.
func (c *Config) ExplorerPath() string {
	if c.ExplorerDB != "" {
		return c.ExplorerDB
	}
	return c.DataDir + "/explorer.db"
}
