package wallet

import (
	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/crypto"
)

// Wallet holds a key pair bound to one pool deployment and builds signed
// transactions for it.
type Wallet struct {
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
	chainID string
}

// New creates a Wallet from an existing private key. chainID must match the
// node's genesis chain_id.
func New(priv crypto.PrivateKey, chainID string) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public(), chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key, the caller identity
// the pool knows this wallet by.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx creates a signed transaction. nonce must match the account's
// current nonce (see getBalance); timestamp is the client's clock in ms.
func (w *Wallet) NewTx(typ core.TxType, nonce uint64, timestamp int64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.pub.Hex(), nonce, timestamp, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// StartSession opens a new play session.
func (w *Wallet) StartSession(nonce uint64, timestamp int64) (*core.Transaction, error) {
	return w.NewTx(core.TxStartSession, nonce, timestamp, core.StartSessionPayload{})
}

// CompleteLevel reports a finished level.
func (w *Wallet) CompleteLevel(nonce uint64, timestamp int64, sessionID uint64, level uint32, score, units uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxCompleteLevel, nonce, timestamp, core.CompleteLevelPayload{
		SessionID:      sessionID,
		Level:          level,
		Score:          score,
		UnitsDestroyed: units,
	})
}

func (w *Wallet) Abandon(nonce uint64, timestamp int64, sessionID uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxAbandon, nonce, timestamp, core.SessionPayload{SessionID: sessionID})
}

func (w *Wallet) Claim(nonce uint64, timestamp int64, sessionID uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaim, nonce, timestamp, core.SessionPayload{SessionID: sessionID})
}

// Fund and Withdraw are accepted only from the pool owner.
func (w *Wallet) Fund(nonce uint64, timestamp int64, amount uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxFund, nonce, timestamp, core.AmountPayload{Amount: amount})
}

func (w *Wallet) Withdraw(nonce uint64, timestamp int64, amount uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxWithdraw, nonce, timestamp, core.AmountPayload{Amount: amount})
}

func (w *Wallet) Pause(nonce uint64, timestamp int64) (*core.Transaction, error) {
	return w.NewTx(core.TxPause, nonce, timestamp, struct{}{})
}

func (w *Wallet) Unpause(nonce uint64, timestamp int64) (*core.Transaction, error) {
	return w.NewTx(core.TxUnpause, nonce, timestamp, struct{}{})
}
