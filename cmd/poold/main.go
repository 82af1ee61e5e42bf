// Command poold runs a reward pool node: it opens the state store, creates
// the pool on first start and serves the JSON-RPC endpoint.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tolelom/levelpool/config"
	"github.com/tolelom/levelpool/events"
	"github.com/tolelom/levelpool/explorer"
	"github.com/tolelom/levelpool/indexer"
	"github.com/tolelom/levelpool/pool"
	"github.com/tolelom/levelpool/rpc"
	"github.com/tolelom/levelpool/storage"
	"github.com/tolelom/levelpool/vm/modules/economy"
	"github.com/tolelom/levelpool/wallet"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "owner.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new key, print its public key and exit")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	// Read keystore password from environment (not CLI flags, they leak via ps).
	password := os.Getenv("POOL_PASSWORD")

	// ---- generate key mode ----
	if *genKey {
		if password == "" {
			log.Warn().Msg("POOL_PASSWORD not set; keystore will use an empty password")
		}
		w, err := wallet.Generate("")
		if err != nil {
			log.Fatal().Err(err).Msg("generate key")
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal().Err(err).Msg("save key")
		}
		fmt.Printf("Generated key. Public key: %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := config.ApplyEnv(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	// Without a configured owner, the keystore's key owns the pool.
	if cfg.Genesis.Owner == "" {
		priv, err := wallet.LoadKey(*keyPath, password)
		if err != nil {
			log.Fatal().Err(err).Str("key", *keyPath).Msg("genesis.owner unset and keystore unreadable")
		}
		cfg.Genesis.Owner = priv.Public().Hex()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("mkdir data dir")
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "pool"))
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	// ---- initialise state ----
	state := storage.NewStateDB(db)
	p, err := config.InitPool(cfg, state)
	if err != nil {
		log.Fatal().Err(err).Msg("init pool")
	}
	log.Info().
		Str("owner", p.Owner).
		Uint64("balance", p.RewardBalance).
		Uint64("sequence", p.Sequence).
		Str("root", state.ComputeRoot()).
		Msg("pool loaded")

	// ---- events ----
	emitter := events.NewEmitter()

	// ---- indexer (same DB, own key prefixes) ----
	idx := indexer.New(db, emitter)

	// ---- explorer ----
	feed, err := explorer.Open(cfg.ExplorerPath())
	if err != nil {
		log.Fatal().Err(err).Msg("open explorer")
	}
	defer feed.Close()
	if err := feed.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("migrate explorer")
	}
	feed.Attach(emitter)

	// ---- pool ----
	ctrl := pool.New(state, emitter, economy.LedgerPayout{})

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(ctrl, idx, feed, cfg.Genesis.ChainID, nil)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("rpc start")
	}
	log.Info().Str("addr", rpcAddr).Bool("auth", cfg.RPCAuthToken != "").Msg("RPC listening")

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	// Stop accepting operations before the stores close.
	if err := rpcServer.Stop(); err != nil {
		log.Error().Err(err).Msg("rpc stop")
	}
	log.Info().Msg("shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("path", path).Msg("config file not found, using defaults")
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
