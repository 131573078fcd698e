package credential

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func fastArgon2() *Argon2id {
	return &Argon2id{Time: 1, Memory: 64, Threads: 1, KeyLen: 16, SaltLen: 8}
}

func TestArgon2idRoundTrip(t *testing.T) {
	a := fastArgon2()
	hash, err := a.Hash("DevAdmin123!")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", hash)
	}

	ok, err := a.Verify(hash, "DevAdmin123!")
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}
	ok, err = a.Verify(hash, "wrong")
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v", ok, err)
	}
}

func TestArgon2idSaltsDiffer(t *testing.T) {
	a := fastArgon2()
	h1, _ := a.Hash("secret-password")
	h2, _ := a.Hash("secret-password")
	if h1 == h2 {
		t.Fatal("two hashes of the same password should differ")
	}
}

func TestArgon2idVerifyUsesStoredParams(t *testing.T) {
	hash, err := fastArgon2().Hash("secret-password")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := DefaultArgon2id().Verify(hash, "secret-password")
	if err != nil || !ok {
		t.Fatalf("verifier with other defaults = %v, %v", ok, err)
	}
}

func TestArgon2idMalformed(t *testing.T) {
	a := fastArgon2()
	for _, h := range []string{
		"",
		"plain",
		"$argon2id$v=19$m=64,t=1,p=1$onlysalt",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$bad$c2FsdA$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$!!$a2V5",
	} {
		if _, err := a.Verify(h, "x"); !errors.Is(err, ErrUnknownHash) {
			t.Errorf("Verify(%q) err = %v, want ErrUnknownHash", h, err)
		}
	}
}

func TestEmptyPassword(t *testing.T) {
	if _, err := fastArgon2().Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("argon2id: %v", err)
	}
	if _, err := (&Bcrypt{Cost: bcrypt.MinCost}).Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("bcrypt: %v", err)
	}
}

func TestBcryptRoundTrip(t *testing.T) {
	b := &Bcrypt{Cost: bcrypt.MinCost}
	hash, err := b.Hash("secret-password")
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := b.Verify(hash, "secret-password"); err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}
	if ok, err := b.Verify(hash, "nope"); err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v", ok, err)
	}
	if _, err := b.Verify("$argon2id$x", "nope"); !errors.Is(err, ErrUnknownHash) {
		t.Fatalf("foreign hash: %v", err)
	}
}

func TestAutoDispatch(t *testing.T) {
	auto := &Auto{Argon2: fastArgon2(), Bcrypt: &Bcrypt{Cost: bcrypt.MinCost}}

	argonHash, err := auto.Hash("secret-password")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(argonHash, "$argon2id$") {
		t.Fatalf("Auto should hash with argon2id, got %q", argonHash)
	}
	bcryptHash, err := auto.Bcrypt.Hash("secret-password")
	if err != nil {
		t.Fatal(err)
	}

	for _, h := range []string{argonHash, bcryptHash} {
		if ok, err := auto.Verify(h, "secret-password"); err != nil || !ok {
			t.Errorf("Verify(%q) = %v, %v", h[:8], ok, err)
		}
	}
	if _, err := auto.Verify("md5:abc", "secret-password"); !errors.Is(err, ErrUnknownHash) {
		t.Errorf("unknown scheme: %v", err)
	}
}
