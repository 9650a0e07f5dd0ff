package stepAuth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/stepAuth/cipher"
)

// Config defines the engine configuration tree.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Enrollment   EnrollmentConfig
	Cipher       CipherConfig
	Challenge    ChallengeConfig
	Confirmation ConfirmationConfig
	EmailCache   EmailCacheConfig
	Destinations DestinationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
ENROLLMENT CONFIG
====================================
*/

// EnrollmentConfig controls local enrollment validation.
type EnrollmentConfig struct {
	MinPasswordLength int
	Questions         []string
}

/*
====================================
CIPHER CONFIG
====================================
*/

// CipherConfig controls puzzle generation. Shifts are drawn from
// [1, MaxShift].
type CipherConfig struct {
	Words    []string
	MaxShift int
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig controls how a completed sign-in is routed.
type ChallengeConfig struct {
	// RoleAttributes are the completion attribute keys inspected, in order.
	RoleAttributes []string
	// AdminValues are attribute values, compared case-insensitively, that
	// mark an admin.
	AdminValues []string
	// UnconfirmedRedirectDelay is how long an unconfirmed-account error is
	// shown before the confirmation flow opens.
	UnconfirmedRedirectDelay time.Duration
}

/*
====================================
CONFIRMATION CONFIG
====================================
*/

type ConfirmationConfig struct {
	CodeLength     int
	ResendCooldown time.Duration
	Tick           time.Duration
}

/*
====================================
EMAIL CACHE CONFIG
====================================
*/

type EmailCacheConfig struct {
	Enabled     bool
	RedisPrefix string
	TTL         time.Duration
}

/*
====================================
DESTINATION CONFIG
====================================
*/

// DestinationConfig maps roles to post sign-in destinations.
type DestinationConfig struct {
	Customer string
	Admin    string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Enrollment: EnrollmentConfig{
			MinPasswordLength: 8,
			Questions:         append([]string(nil), DefaultSecurityQuestions...),
		},
		Cipher: CipherConfig{
			Words:    append([]string(nil), cipher.DefaultWords...),
			MaxShift: cipher.DefaultMaxShift,
		},
		Challenge: ChallengeConfig{
			RoleAttributes:           []string{"custom:userType", "cognito:groups"},
			AdminValues:              []string{"admin", "franchise_operator", "FranchiseOperators"},
			UnconfirmedRedirectDelay: 2 * time.Second,
		},
		Confirmation: ConfirmationConfig{
			CodeLength:     6,
			ResendCooldown: 60 * time.Second,
			Tick:           time.Second,
		},
		EmailCache: EmailCacheConfig{
			Enabled:     true,
			RedisPrefix: "sae",
			TTL:         30 * 24 * time.Hour,
		},
		Destinations: DestinationConfig{
			Customer: "/dashboard",
			Admin:    "/admin",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Enrollment.Questions = cloneStrings(cfg.Enrollment.Questions)
	out.Cipher.Words = cloneStrings(cfg.Cipher.Words)
	out.Challenge.RoleAttributes = cloneStrings(cfg.Challenge.RoleAttributes)
	out.Challenge.AdminValues = cloneStrings(cfg.Challenge.AdminValues)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate returns the first invalid setting it finds and does not modify the receiver.
func (c *Config) Validate() error {
	// Enrollment
	if c.Enrollment.MinPasswordLength < 1 {
		return errors.New("Enrollment MinPasswordLength must be >= 1")
	}
	if len(c.Enrollment.Questions) < 3 {
		return errors.New("Enrollment Questions must offer at least 3 questions")
	}
	seen := make(map[string]struct{}, len(c.Enrollment.Questions))
	for _, q := range c.Enrollment.Questions {
		if strings.TrimSpace(q) == "" {
			return errors.New("Enrollment Questions must not contain blank entries")
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			return errors.New("Enrollment Questions must be distinct")
		}
		seen[key] = struct{}{}
	}

	// Cipher
	if len(c.Cipher.Words) == 0 {
		return errors.New("Cipher Words must not be empty")
	}
	for _, w := range c.Cipher.Words {
		if w == "" || strings.ToUpper(w) != w || strings.Trim(w, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
			return errors.New("Cipher Words must be uppercase ASCII letters")
		}
	}
	if c.Cipher.MaxShift < cipher.MinShift || c.Cipher.MaxShift > cipher.MaxShift {
		return errors.New("Cipher MaxShift must be in [1,25]")
	}

	// Challenge
	if len(c.Challenge.RoleAttributes) == 0 {
		return errors.New("Challenge RoleAttributes must not be empty")
	}
	if c.Challenge.UnconfirmedRedirectDelay < 0 {
		return errors.New("Challenge UnconfirmedRedirectDelay must be >= 0")
	}

	// Confirmation
	if c.Confirmation.CodeLength < 4 || c.Confirmation.CodeLength > 10 {
		return errors.New("Confirmation CodeLength must be in [4,10]")
	}
	if c.Confirmation.ResendCooldown <= 0 {
		return errors.New("Confirmation ResendCooldown must be > 0")
	}
	if c.Confirmation.Tick <= 0 || c.Confirmation.Tick > c.Confirmation.ResendCooldown {
		return errors.New("Confirmation Tick must be > 0 and <= ResendCooldown")
	}

	// Email cache
	if c.EmailCache.Enabled {
		if c.EmailCache.TTL < 0 {
			return errors.New("EmailCache TTL must be >= 0")
		}
		if strings.ContainsAny(c.EmailCache.RedisPrefix, " :") {
			return errors.New("EmailCache RedisPrefix must not contain spaces or ':'")
		}
	}

	// Destinations
	if c.Destinations.Customer == "" || c.Destinations.Admin == "" {
		return errors.New("Destinations Customer and Admin must be set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
