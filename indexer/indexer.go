// Package indexer maintains secondary lookup tables over committed pool
// events so game servers can answer player queries without scanning state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/events"
	"github.com/tolelom/levelpool/storage"
)

const (
	prefixPlayerClaims = "idx:player:claims:"
	prefixCompletion   = "idx:fp:"
)

// Claim records one payout to a player.
type Claim struct {
	SessionID uint64 `json:"session_id"`
	Amount    uint64 `json:"amount"`
	TxID      string `json:"tx_id"`
	Sequence  uint64 `json:"sequence"`
	Time      int64  `json:"time"`
}

// Completion locates the level completion a fingerprint was issued for.
type Completion struct {
	SessionID uint64 `json:"session_id"`
	Player    string `json:"player"`
	Level     uint32 `json:"level"`
	Sequence  uint64 `json:"sequence"`
	Time      int64  `json:"time"`
}

// Indexer subscribes to pool events and updates secondary lookup tables.
// Its keys live outside the state prefixes, so it never affects the state root.
type Indexer struct {
	db storage.DB
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	emitter.Subscribe(events.EventRewardsClaimed, idx.onRewardsClaimed)
	emitter.Subscribe(events.EventLevelCompleted, idx.onLevelCompleted)
	return idx
}

// ClaimsByPlayer returns every claim paid to player, oldest first.
func (idx *Indexer) ClaimsByPlayer(player string) ([]Claim, error) {
	var claims []Claim
	if err := idx.getJSON(prefixPlayerClaims+player, &claims); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return []Claim{}, nil
		}
		return nil, err
	}
	return claims, nil
}

// CompletionByFingerprint returns the completion fp was registered for.
// It returns core.ErrNotFound for unknown fingerprints.
func (idx *Indexer) CompletionByFingerprint(fp string) (*Completion, error) {
	var c Completion
	if err := idx.getJSON(prefixCompletion+fp, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ---- event handlers ----

func (idx *Indexer) onRewardsClaimed(ev events.Event) {
	player, _ := ev.Data["player"].(string)
	sessionID, _ := ev.Data["session_id"].(uint64)
	amount, _ := ev.Data["amount"].(uint64)
	if player == "" || amount == 0 {
		return
	}
	claims, err := idx.ClaimsByPlayer(player)
	if err != nil {
		logIndexErr(ev, err)
		return
	}
	claims = append(claims, Claim{
		SessionID: sessionID,
		Amount:    amount,
		TxID:      ev.TxID,
		Sequence:  ev.Sequence,
		Time:      ev.Time,
	})
	if err := idx.setJSON(prefixPlayerClaims+player, claims); err != nil {
		logIndexErr(ev, err)
	}
}

func (idx *Indexer) onLevelCompleted(ev events.Event) {
	fp, _ := ev.Data["fingerprint"].(string)
	if fp == "" {
		return
	}
	c := Completion{Sequence: ev.Sequence, Time: ev.Time}
	c.SessionID, _ = ev.Data["session_id"].(uint64)
	c.Player, _ = ev.Data["player"].(string)
	c.Level, _ = ev.Data["level"].(uint32)
	if err := idx.setJSON(prefixCompletion+fp, c); err != nil {
		logIndexErr(ev, err)
	}
}

func logIndexErr(ev events.Event, err error) {
	log.Error().
		Str("component", "indexer").
		Str("event", string(ev.Type)).
		Uint64("sequence", ev.Sequence).
		Err(err).
		Msg("index update failed")
}

// ---- helpers ----

func (idx *Indexer) getJSON(key string, v any) error {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("indexer unmarshal %s: %w", key, err)
	}
	return nil
}

func (idx *Indexer) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
