package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      minMemoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("hunter22")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("hunter22", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, ok=%v err=%v", ok, err)
	}
}

func TestShortAnswersHash(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("rex")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if ok, _ := hasher.Verify("rex", hash); !ok {
		t.Fatal("expected short answer to verify")
	}
	if ok, _ := hasher.Verify("Rex", hash); ok {
		t.Fatal("expected hashing to be case sensitive")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	hasher, _ := NewArgon2(testConfig())
	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := hasher.Verify("wrong-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}

	if ok, err := hasher.Verify("", hash); ok || err != nil {
		t.Fatalf("expected empty secret to simply fail, ok=%v err=%v", ok, err)
	}
}

func TestSaltsDiffer(t *testing.T) {
	hasher, _ := NewArgon2(testConfig())
	a, _ := hasher.Hash("same-secret")
	b, _ := hasher.Hash("same-secret")
	if a == b {
		t.Fatal("expected distinct salts")
	}
}

func TestNeedsUpgrade(t *testing.T) {
	oldHasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2(old) error: %v", err)
	}
	hash, err := oldHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := testConfig()
	stronger.Time = 2
	newHasher, err := NewArgon2(stronger)
	if err != nil {
		t.Fatalf("NewArgon2(new) error: %v", err)
	}

	if up, err := newHasher.NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("expected upgrade, got %v err=%v", up, err)
	}
	if up, err := oldHasher.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("expected no upgrade with same config, got %v err=%v", up, err)
	}
	if ok, _ := newHasher.Verify("test-password", hash); !ok {
		t.Fatal("expected stronger hasher to verify older hash")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, _ := NewArgon2(testConfig())

	tests := []struct {
		name string
		hash string
		want error
	}{
		{name: "garbage", hash: "not-a-hash", want: ErrInvalidHash},
		{name: "bcrypt", hash: "$2a$10$abcdefghijklmnopqrstuv", want: ErrInvalidHash},
		{name: "argon2i", hash: "$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA", want: ErrUnsupportedHash},
		{name: "old version", hash: "$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA", want: ErrUnsupportedHash},
		{name: "low memory", hash: "$argon2id$v=19$m=8,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA", want: ErrInvalidHash},
		{name: "missing param", hash: "$argon2id$v=19$m=8192,t=1,x=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA", want: ErrUnsupportedHash},
		{name: "short salt", hash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaGhhc2hoYXNoaGFzaA", want: ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := hasher.Verify("secret", tt.hash); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestHashBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSecretBytes = 16
	hasher, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	if _, err := hasher.Hash(""); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
	if _, err := hasher.Hash(strings.Repeat("a", 17)); !errors.Is(err, ErrSecretTooLong) {
		t.Fatalf("expected ErrSecretTooLong, got %v", err)
	}
	if _, err := hasher.Hash(strings.Repeat("a", 16)); err != nil {
		t.Fatalf("expected max length accepted, got %v", err)
	}
	if _, err := hasher.Verify(strings.Repeat("a", 17), "$argon2id$"); !errors.Is(err, ErrSecretTooLong) {
		t.Fatalf("expected ErrSecretTooLong on verify, got %v", err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	tests := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
		func(c *Config) { c.MaxSecretBytes = -1 },
	}
	for i, mutate := range tests {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if _, err := NewArgon2(DefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}
