package explorer

import (
	"testing"

	"github.com/tolelom/levelpool/events"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newStore(t)
	if err := s.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestAttachRecordsFeed(t *testing.T) {
	s := newStore(t)
	em := events.NewEmitter()
	s.Attach(em)

	em.Emit(events.Event{Type: events.EventSessionStarted, TxID: "a", Sequence: 1, Time: 10,
		Data: map[string]any{"session_id": uint64(1), "player": "alice"}})
	em.Emit(events.Event{Type: events.EventSessionStarted, TxID: "b", Sequence: 2, Time: 20,
		Data: map[string]any{"session_id": uint64(2), "player": "bob"}})
	em.Emit(events.Event{Type: events.EventLevelCompleted, TxID: "c", Sequence: 3, Time: 30,
		Data: map[string]any{"session_id": uint64(1), "player": "alice", "level": uint32(1)}})
	em.Emit(events.Event{Type: events.EventPoolFunded, TxID: "d", Sequence: 4, Time: 40,
		Data: map[string]any{"amount": uint64(500)}})

	recent, err := s.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].TxID != "d" || recent[1].TxID != "c" {
		t.Fatalf("recent: %+v", recent)
	}
	if recent[0].SessionID != 0 || recent[0].Player != "" {
		t.Errorf("pool event should have no session or player: %+v", recent[0])
	}
	if recent[0].Data["amount"] != float64(500) {
		t.Errorf("data round trip: %v", recent[0].Data)
	}

	sess, err := s.BySession(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess) != 2 || sess[0].Type != events.EventSessionStarted || sess[1].Type != events.EventLevelCompleted {
		t.Errorf("by session: %+v", sess)
	}
	if sess[0].ID == sess[1].ID || sess[0].ID == "" {
		t.Errorf("row ids: %q %q", sess[0].ID, sess[1].ID)
	}

	bob, err := s.ByPlayer("bob", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(bob) != 1 || bob[0].Sequence != 2 || bob[0].Time != 20 {
		t.Errorf("by player: %+v", bob)
	}
}

func TestEmptyFeed(t *testing.T) {
	s := newStore(t)
	rows, err := s.BySession(99)
	if err != nil {
		t.Fatal(err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("empty result: %#v", rows)
	}
}
