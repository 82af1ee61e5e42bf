// Package replay derives completion fingerprints and guards the global set
// of used ones. The set is append-only.
package replay

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/crypto"
)

// Result is the outcome of Register.
type Result int

const (
	Accepted Result = iota
	AlreadyUsed
)

func (r Result) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "already_used"
}

// Fingerprint derives the digest of one completion event. Fields are encoded
// big-endian at fixed width so no two tuples share an encoding.
func Fingerprint(sessionID uint64, level uint32, score, units uint64, timestamp int64) core.Fingerprint {
	var buf [36]byte
	binary.BigEndian.PutUint64(buf[0:8], sessionID)
	binary.BigEndian.PutUint32(buf[8:12], level)
	binary.BigEndian.PutUint64(buf[12:20], score)
	binary.BigEndian.PutUint64(buf[20:28], units)
	binary.BigEndian.PutUint64(buf[28:36], uint64(timestamp))
	return core.Fingerprint(crypto.Digest([]byte("levelpool/completion/v1"), buf[:]))
}

// Guard records used fingerprints in state. It relies on the caller holding
// the pool's write lock so check and insert cannot interleave.
type Guard struct {
	state core.State
}

// NewGuard returns a Guard over state.
func NewGuard(state core.State) *Guard {
	return &Guard{state: state}
}

// Seen reports whether fp has already been registered.
func (g *Guard) Seen(fp core.Fingerprint) (bool, error) {
	_, err := g.state.GetFingerprint(fp)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup fingerprint %s: %w", fp, err)
	}
	return true, nil
}

// Register records fp for sessionID. It returns AlreadyUsed, leaving state
// untouched, if fp was registered before.
func (g *Guard) Register(fp core.Fingerprint, sessionID uint64) (Result, error) {
	seen, err := g.Seen(fp)
	if err != nil {
		return AlreadyUsed, err
	}
	if seen {
		return AlreadyUsed, nil
	}
	if err := g.state.PutFingerprint(fp, sessionID); err != nil {
		return AlreadyUsed, fmt.Errorf("store fingerprint %s: %w", fp, err)
	}
	return Accepted, nil
}
