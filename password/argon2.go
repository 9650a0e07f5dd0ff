package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	defaultMaxSecretBytes = 1024
)

var (
	ErrEmptySecret     = errors.New("password: empty secret")
	ErrSecretTooLong   = errors.New("password: secret too long")
	ErrInvalidHash     = errors.New("password: invalid PHC hash")
	ErrUnsupportedHash = errors.New("password: unsupported hash")
)

// Config holds Argon2id cost parameters. MaxSecretBytes bounds the input so
// a caller cannot make the server hash arbitrarily large payloads; zero means
// the package default.
type Config struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MaxSecretBytes int
}

// DefaultConfig returns production parameters.
func DefaultConfig() Config {
	return Config{
		Memory:         64 * 1024,
		Time:           3,
		Parallelism:    2,
		SaltLength:     16,
		KeyLength:      32,
		MaxSecretBytes: defaultMaxSecretBytes,
	}
}

// Argon2 hashes passwords and security answers. It is safe for concurrent
// use.
type Argon2 struct {
	config Config
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// NewArgon2 describes the newargon2 operation and its observable behavior.
//
// NewArgon2 rejects parameters below the package minimums.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxSecretBytes <= 0 {
		cfg.MaxSecretBytes = defaultMaxSecretBytes
	}

	return &Argon2{config: cfg}, nil
}

// Hash returns the PHC encoding of secret under a fresh random salt. Bytes
// are hashed exactly as given; normalizing answers is the caller's job.
func (a *Argon2) Hash(secret string) (string, error) {
	if err := a.checkSecret(secret); err != nil {
		return "", err
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(secret),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify describes the verify operation and its observable behavior.
//
// Verify reports whether secret matches encodedHash, using the parameters
// stored in the hash. A malformed hash is an error, a mismatch is not.
func (a *Argon2) Verify(secret string, encodedHash string) (bool, error) {
	if err := a.checkSecret(secret); err != nil {
		if errors.Is(err, ErrEmptySecret) {
			return false, nil
		}
		return false, err
	}

	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the receiver's.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	return a.config.Memory > parsed.memory ||
		a.config.Time > parsed.time ||
		a.config.Parallelism > parsed.parallelism ||
		a.config.KeyLength != uint32(len(parsed.hash)), nil
}

func (a *Argon2) checkSecret(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	if len(secret) > a.config.MaxSecretBytes {
		return ErrSecretTooLong
	}
	return nil
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: format", ErrInvalidHash)
	}

	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: algorithm %q", ErrUnsupportedHash, parts[1])
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, fmt.Errorf("%w: version", ErrInvalidHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedHash, version)
	}

	p, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrInvalidHash)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) < int(minKeyLength) {
		return nil, fmt.Errorf("%w: hash", ErrInvalidHash)
	}

	p.salt = salt
	p.hash = hash
	return p, nil
}

func parseParams(part string) (*parsedPHC, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, fmt.Errorf("%w: parameters", ErrInvalidHash)
	}

	var (
		seen   int
		params parsedPHC
	)

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q", ErrInvalidHash, pair)
		}

		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, fmt.Errorf("%w: memory", ErrInvalidHash)
			}
			params.memory = uint32(v)
			seen |= 1
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, fmt.Errorf("%w: time", ErrInvalidHash)
			}
			params.time = uint32(v)
			seen |= 2
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, fmt.Errorf("%w: parallelism", ErrInvalidHash)
			}
			params.parallelism = uint8(v)
			seen |= 4
		default:
			return nil, fmt.Errorf("%w: parameter %q", ErrUnsupportedHash, key)
		}
	}

	if seen != 7 {
		return nil, fmt.Errorf("%w: missing parameters", ErrInvalidHash)
	}

	return &params, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.MaxSecretBytes < 0 {
		return errors.New("password max secret bytes must be >= 0")
	}

	return nil
}
