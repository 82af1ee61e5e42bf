package core

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/levelpool/crypto"
)

// TxType identifies the pool operation a transaction performs.
type TxType string

const (
	TxStartSession  TxType = "start_session"
	TxCompleteLevel TxType = "complete_level"
	TxAbandon       TxType = "abandon_session"
	TxClaim         TxType = "claim_rewards"
	TxFund          TxType = "fund_pool"
	TxWithdraw      TxType = "withdraw_pool"
	TxPause         TxType = "pause_pool"
	TxUnpause       TxType = "unpause_pool"
)

// Fingerprint is a 256-bit digest of one level-completion event.
type Fingerprint [32]byte

// Hex returns the lowercase hex encoding of fp.
func (fp Fingerprint) Hex() string { return hex.EncodeToString(fp[:]) }

// String implements fmt.Stringer.
func (fp Fingerprint) String() string { return fp.Hex() }

// FingerprintFromHex decodes a 64-char hex fingerprint.
func FingerprintFromHex(s string) (Fingerprint, error) {
	var fp Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("invalid fingerprint hex: %w", err)
	}
	if len(b) != len(fp) {
		return fp, fmt.Errorf("fingerprint must be %d bytes, got %d", len(fp), len(b))
	}
	copy(fp[:], b)
	return fp, nil
}

// Transaction is the envelope for one pool operation.
// From is the caller identity; over RPC it is the sender's hex-encoded
// ed25519 public key and Signature covers all other fields.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature,omitempty"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction. timestamp is the caller's
// clock reading; it does not feed level timing, which uses the host's now.
func NewTransaction(chainID string, typ TxType, from string, nonce uint64, timestamp int64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	tx := &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Timestamp: timestamp,
		Payload:   raw,
	}
	tx.ID = tx.Hash()
	return tx, nil
}

// ---- Payload types ----

// StartSessionPayload opens a new session for the sender. It carries no fields.
type StartSessionPayload struct{}

// CompleteLevelPayload reports one level completion from the game client.
type CompleteLevelPayload struct {
	SessionID      uint64 `json:"session_id"`
	Level          uint32 `json:"level"`
	Score          uint64 `json:"score"` // informational only
	UnitsDestroyed uint64 `json:"units_destroyed"`
}

// SessionPayload targets an existing session (abandon, claim).
type SessionPayload struct {
	SessionID uint64 `json:"session_id"`
}

// AmountPayload carries a token amount (fund, withdraw).
type AmountPayload struct {
	Amount uint64 `json:"amount"`
}

// Receipt describes the outcome of a successfully applied transaction.
type Receipt struct {
	TxID        string `json:"tx_id"`
	Type        TxType `json:"type"`
	Sequence    uint64 `json:"sequence"`
	SessionID   uint64 `json:"session_id,omitempty"`
	Level       uint32 `json:"level,omitempty"` // next level to play
	Completed   bool   `json:"completed,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Amount      uint64 `json:"amount,omitempty"`
	PoolBalance uint64 `json:"pool_balance"`
}
