package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All prefix constants must be declared
// via this function.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
var statePrefixes []string

var (
	prefixPool           = registerPrefix("pool:")
	prefixSession        = registerPrefix("sess:")
	prefixPlayerSessions = registerPrefix("psess:")
	prefixPlayerRewards  = registerPrefix("plife:")
	prefixFingerprint    = registerPrefix("fp:")
	prefixAccount        = registerPrefix("acct:")
)

var keyPool = prefixPool + "state"

// sessionKey zero-pads the id so keys iterate in id order.
func sessionKey(id uint64) string {
	return fmt.Sprintf("%s%020d", prefixSession, id)
}

// stateSnapshot is a deep copy of the write buffer. Pool state is
// append/overwrite only, so there is no delete set to track.
type stateSnapshot struct {
	dirty map[string][]byte
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
// It is not safe for concurrent use; pool.Controller serialises access.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.dirty[key] = val
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Pool ----

func (s *StateDB) GetPool() (*core.Pool, error) {
	var p core.Pool
	if err := s.getJSON(keyPool, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetPool(p *core.Pool) error {
	return s.setJSON(keyPool, p)
}

// ---- Session ----

func (s *StateDB) GetSession(id uint64) (*core.Session, error) {
	var sess core.Session
	if err := s.getJSON(sessionKey(id), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *StateDB) SetSession(sess *core.Session) error {
	return s.setJSON(sessionKey(sess.ID), sess)
}

// ---- Player index ----

func (s *StateDB) GetPlayerSessions(player string) ([]uint64, error) {
	var ids []uint64
	err := s.getJSON(prefixPlayerSessions+player, &ids)
	if errors.Is(err, core.ErrNotFound) {
		return []uint64{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *StateDB) AppendPlayerSession(player string, id uint64) error {
	ids, err := s.GetPlayerSessions(player)
	if err != nil {
		return err
	}
	return s.setJSON(prefixPlayerSessions+player, append(ids, id))
}

func (s *StateDB) GetPlayerRewards(player string) (uint64, error) {
	data, err := s.get(prefixPlayerRewards + player)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	total, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode lifetime rewards for %s: %w", player, err)
	}
	return total, nil
}

func (s *StateDB) SetPlayerRewards(player string, total uint64) error {
	s.set(prefixPlayerRewards+player, []byte(strconv.FormatUint(total, 10)))
	return nil
}

// ---- Fingerprints ----

func (s *StateDB) GetFingerprint(fp core.Fingerprint) (uint64, error) {
	data, err := s.get(prefixFingerprint + fp.Hex())
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode fingerprint %s: %w", fp, err)
	}
	return id, nil
}

func (s *StateDB) PutFingerprint(fp core.Fingerprint, sessionID uint64) error {
	s.set(prefixFingerprint+fp.Hex(), []byte(strconv.FormatUint(sessionID, 10)))
	return nil
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{dirty: make(map[string][]byte, len(s.dirty))}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards it together with every later snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}

	s.dirty = dirty
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete pool state.
// It merges all persisted entries under the known state prefixes with the
// current write buffer, then hashes the sorted key-value pairs using
// length-prefix encoding. It does not flush or modify state.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[string(it.Key())] = v
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// Batch and then clears it together with all snapshots.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.snapshots = nil
	return nil
}
