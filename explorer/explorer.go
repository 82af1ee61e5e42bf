// Package explorer keeps a queryable feed of committed pool events in
// SQLite for dashboards and game clients.
package explorer

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/tolelom/levelpool/events"
)

// Row is one recorded event.
type Row struct {
	ID        string           `json:"id"`
	Type      events.EventType `json:"type"`
	TxID      string           `json:"tx_id"`
	Sequence  uint64           `json:"sequence"`
	SessionID uint64           `json:"session_id,omitempty"`
	Player    string           `json:"player,omitempty"`
	Time      int64            `json:"time"`
	Data      map[string]any   `json:"data"`
}

// Store is the SQLite-backed event feed.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the feed database at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open explorer database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			tx_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			session_id INTEGER,
			player TEXT,
			time INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_player ON events(player)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("explorer migration failed: %w", err)
		}
	}
	return nil
}

// Attach records every event emitted on em. Write failures are logged; the
// feed is best-effort and never blocks the pool.
func (s *Store) Attach(em *events.Emitter) {
	em.SubscribeAll(func(ev events.Event) {
		if err := s.Record(ev); err != nil {
			log.Error().
				Str("component", "explorer").
				Str("event", string(ev.Type)).
				Uint64("sequence", ev.Sequence).
				Err(err).
				Msg("record event failed")
		}
	})
}

// Record stores ev under a fresh row id.
func (s *Store) Record(ev events.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	var sessionID sql.NullInt64
	if id, ok := ev.Data["session_id"].(uint64); ok {
		sessionID = sql.NullInt64{Int64: int64(id), Valid: true}
	}
	var player sql.NullString
	if p, ok := ev.Data["player"].(string); ok && p != "" {
		player = sql.NullString{String: p, Valid: true}
	}
	_, err = s.db.Exec(
		`INSERT INTO events (id, type, tx_id, sequence, session_id, player, time, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(ev.Type), ev.TxID, int64(ev.Sequence), sessionID, player, ev.Time, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

const selectRows = `SELECT id, type, tx_id, sequence, session_id, player, time, data FROM events`

// Recent returns the newest limit events, newest first.
func (s *Store) Recent(limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(selectRows+` ORDER BY rowid DESC LIMIT ?`, limit)
}

// BySession returns every event of one session in the order it happened.
func (s *Store) BySession(id uint64) ([]Row, error) {
	return s.query(selectRows+` WHERE session_id = ? ORDER BY rowid`, int64(id))
}

// ByPlayer returns the newest limit events that name player, newest first.
func (s *Store) ByPlayer(player string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(selectRows+` WHERE player = ? ORDER BY rowid DESC LIMIT ?`, player, limit)
}

func (s *Store) query(q string, args ...any) ([]Row, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var (
			r         Row
			typ       string
			seq       int64
			sessionID sql.NullInt64
			player    sql.NullString
			data      string
		)
		if err := rows.Scan(&r.ID, &typ, &r.TxID, &seq, &sessionID, &player, &r.Time, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Type = events.EventType(typ)
		r.Sequence = uint64(seq)
		if sessionID.Valid {
			r.SessionID = uint64(sessionID.Int64)
		}
		r.Player = player.String
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
