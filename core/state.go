package core

// SessionStatus is the lifecycle state of a play session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Account holds the tokens paid out to an address and its tx nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Pool is the singleton aggregate holding the payable balance and global
// bookkeeping. Sessions, the player index, lifetime totals and used
// fingerprints are stored beside it under their own key prefixes.
type Pool struct {
	Owner                   string `json:"owner"` // pubkey hex; immutable
	RewardBalance           uint64 `json:"reward_balance"`
	TotalGames              uint64 `json:"total_games"`
	TotalRewardsDistributed uint64 `json:"total_rewards_distributed"`
	NextSessionID           uint64 `json:"next_session_id"`
	Paused                  bool   `json:"paused"`
	Sequence                uint64 `json:"sequence"` // applied mutating operations
}

// Session is one player's run through the levels. Sessions are never
// deleted; terminal sessions stay in state for audit.
type Session struct {
	ID              uint64        `json:"id"`
	Player          string        `json:"player"`
	CurrentLevel    uint32        `json:"current_level"`
	LevelsCompleted uint32        `json:"levels_completed"`
	PendingReward   uint64        `json:"pending_reward"` // accrued, unclaimed
	EarnedReward    uint64        `json:"earned_reward"`  // accrued over the session's life
	StartTime       int64         `json:"start_time"`
	LevelStartTime  int64         `json:"level_start_time"`
	EndTime         int64         `json:"end_time,omitempty"`
	Status          SessionStatus `json:"status"`
	Fingerprints    []string      `json:"fingerprints"`
}

// IsActive reports whether the session still accepts level completions.
func (s *Session) IsActive() bool { return s.Status == SessionActive }

// IsCompleted reports whether every level was cleared.
func (s *Session) IsCompleted() bool { return s.Status == SessionCompleted }

// State is the pool state interface. Implementations must be snapshot-able
// so the executor can roll back failed operations.
type State interface {
	// Pool singleton; ErrNotFound before initialisation.
	GetPool() (*Pool, error)
	SetPool(p *Pool) error

	// Sessions
	GetSession(id uint64) (*Session, error)
	SetSession(s *Session) error

	// Player index and lifetime totals. Unknown players yield empty values.
	GetPlayerSessions(player string) ([]uint64, error)
	AppendPlayerSession(player string, id uint64) error
	GetPlayerRewards(player string) (uint64, error)
	SetPlayerRewards(player string, total uint64) error

	// Used fingerprints. There is intentionally no delete.
	GetFingerprint(fp Fingerprint) (sessionID uint64, err error)
	PutFingerprint(fp Fingerprint, sessionID uint64) error

	// Payout accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root including the current
	// write buffer, without flushing it.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}

// Payout moves amount of the payable asset out of the pool to recipient.
// Implementations write through state so the transfer commits or reverts
// together with the operation that triggered it.
type Payout interface {
	Pay(state State, recipient string, amount uint64) error
}
