package replay

import (
	"testing"

	"github.com/tolelom/levelpool/core"
	"github.com/tolelom/levelpool/internal/testutil"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint(1, 2, 300, 22, 1_000)
	b := Fingerprint(1, 2, 300, 22, 1_000)
	if a != b {
		t.Fatal("identical inputs must give identical fingerprints")
	}
	variants := []struct {
		name string
		fp   core.Fingerprint
	}{
		{"session", Fingerprint(2, 2, 300, 22, 1_000)},
		{"level", Fingerprint(1, 3, 300, 22, 1_000)},
		{"score", Fingerprint(1, 2, 301, 22, 1_000)},
		{"units", Fingerprint(1, 2, 300, 23, 1_000)},
		{"timestamp", Fingerprint(1, 2, 300, 22, 1_001)},
	}
	for _, v := range variants {
		if v.fp == a {
			t.Errorf("changing %s did not change the fingerprint", v.name)
		}
	}
}

func TestGuardRegister(t *testing.T) {
	state := testutil.NewStateDB()
	g := NewGuard(state)
	fp := Fingerprint(7, 1, 10, 11, 42)

	res, err := g.Register(fp, 7)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res != Accepted {
		t.Fatalf("first register: got %s want accepted", res)
	}

	for i := 0; i < 3; i++ {
		res, err = g.Register(fp, 8)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if res != AlreadyUsed {
			t.Fatalf("repeat register %d: got %s want already_used", i, res)
		}
	}

	owner, err := state.GetFingerprint(fp)
	if err != nil {
		t.Fatal(err)
	}
	if owner != 7 {
		t.Errorf("fingerprint owner: got %d want 7 (rejected register must not overwrite)", owner)
	}
}

func TestGuardSurvivesCommit(t *testing.T) {
	state := testutil.NewStateDB()
	g := NewGuard(state)
	fp := Fingerprint(1, 1, 0, 11, 5)
	if _, err := g.Register(fp, 1); err != nil {
		t.Fatal(err)
	}
	if err := state.Commit(); err != nil {
		t.Fatal(err)
	}
	seen, err := g.Seen(fp)
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("fingerprint lost after commit")
	}
}
