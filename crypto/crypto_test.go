package crypto

import "testing"

func TestSignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.Hex()) != 64 {
		t.Errorf("pubkey hex length: got %d want 64", len(pub.Hex()))
	}
	if priv.Public().Hex() != pub.Hex() {
		t.Error("derived public key does not match")
	}
	data := []byte("level 3 cleared")
	sig := Sign(priv, data)
	if err := Verify(pub, data, sig); err != nil {
		t.Errorf("valid signature failed: %v", err)
	}
	if err := Verify(pub, []byte("tampered"), sig); err == nil {
		t.Error("tampered data should fail verification")
	}
	if err := Verify(pub, data, ""); err == nil {
		t.Error("empty signature should fail verification")
	}
}

func TestDigestDeterministic(t *testing.T) {
	a := Digest([]byte("ab"), []byte("c"))
	b := Digest([]byte("abc"))
	if a != b {
		t.Error("digest should only depend on the concatenated bytes")
	}
	if a == Digest([]byte("abd")) {
		t.Error("different input produced the same digest")
	}
}
