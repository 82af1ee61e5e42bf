package wallet

import (
	"path/filepath"
	"testing"

	"github.com/tolelom/levelpool/core"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate("test")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := SaveKey(path, "hunter2", w.PrivKey()); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	priv, err := LoadKey(path, "hunter2")
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if New(priv, "test").PubKey() != w.PubKey() {
		t.Error("loaded key differs")
	}
	if _, err := LoadKey(path, "wrong"); err == nil {
		t.Error("wrong password should fail")
	}
}

func TestSignedTransactionsVerify(t *testing.T) {
	w, _ := Generate("test")
	tx, err := w.CompleteLevel(3, 1_000, 7, 2, 40, 22)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if tx.From != w.PubKey() || tx.ChainID != "test" || tx.Nonce != 3 || tx.Type != core.TxCompleteLevel {
		t.Errorf("envelope: %+v", tx)
	}

	tx.Nonce = 4
	if err := tx.Verify(); err == nil {
		t.Error("tampered nonce should break the signature")
	}
}
