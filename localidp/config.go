package localidp

import (
	"errors"
	"time"

	"github.com/MrEthical07/stepAuth/cipher"
	"github.com/MrEthical07/stepAuth/jwt"
	"github.com/MrEthical07/stepAuth/password"
)

// Config defines the reference provider configuration.
type Config struct {
	KeyPrefix string

	Challenge    ChallengeConfig
	Confirmation ConfirmationConfig
	RateLimit    RateLimitConfig
	Groups       GroupConfig

	Password password.Config
	// UpgradeHashes rehashes a password after a successful sign-in when its
	// stored parameters differ from Password.
	UpgradeHashes bool
	Token         jwt.Config
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig controls the sign-in challenge sessions.
type ChallengeConfig struct {
	SessionTTL  time.Duration
	MaxAttempts int
	Phrases     []string
	MaxShift    int
}

/*
====================================
CONFIRMATION CONFIG
====================================
*/

// ConfirmationConfig controls registration confirmation codes.
type ConfirmationConfig struct {
	CodeDigits  int
	CodeTTL     time.Duration
	MaxAttempts int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig bounds failed sign-ins and code resends. Zero disables a
// budget.
type RateLimitConfig struct {
	EnableIPThrottle  bool
	MaxSignInFailures int
	SignInCooldown    time.Duration
	MaxResends        int
	ResendWindow      time.Duration
}

/*
====================================
GROUP CONFIG
====================================
*/

// GroupConfig assigns the group a user joins at confirmation.
type GroupConfig struct {
	// ByUserType maps an enrolled user type to its group.
	ByUserType map[string]string
	Default    string
}

// DefaultConfig returns the reference provider defaults. Token needs a key
// before the config validates.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "sidp",
		Challenge: ChallengeConfig{
			SessionTTL:  3 * time.Minute,
			MaxAttempts: 3,
			Phrases:     append([]string(nil), cipher.DefaultWords...),
			MaxShift:    cipher.DefaultMaxShift,
		},
		Confirmation: ConfirmationConfig{
			CodeDigits:  6,
			CodeTTL:     24 * time.Hour,
			MaxAttempts: 5,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle:  false,
			MaxSignInFailures: 5,
			SignInCooldown:    15 * time.Minute,
			MaxResends:        5,
			ResendWindow:      time.Hour,
		},
		Groups: GroupConfig{
			ByUserType: map[string]string{
				"admin":              "FranchiseOperators",
				"franchise_operator": "FranchiseOperators",
			},
			Default: "Customers",
		},
		Password:      password.DefaultConfig(),
		UpgradeHashes: true,
		Token: jwt.Config{
			TTL:           time.Hour,
			SigningMethod: jwt.MethodHS256,
			Issuer:        "stepauth-localidp",
		},
	}
}

// Validate rejects configurations the provider cannot run with.
func (c *Config) Validate() error {
	if c.KeyPrefix == "" {
		return errors.New("key prefix must not be empty")
	}
	if c.Challenge.SessionTTL <= 0 {
		return errors.New("challenge session TTL must be > 0")
	}
	if c.Challenge.MaxAttempts <= 0 {
		return errors.New("challenge max attempts must be > 0")
	}
	if len(c.Challenge.Phrases) == 0 {
		return errors.New("challenge phrases must not be empty")
	}
	if c.Challenge.MaxShift < cipher.MinShift || c.Challenge.MaxShift > cipher.MaxShift {
		return errors.New("challenge max shift must be within [1,25]")
	}
	if c.Confirmation.CodeDigits < 4 || c.Confirmation.CodeDigits > 10 {
		return errors.New("confirmation code digits must be within [4,10]")
	}
	if c.Confirmation.CodeTTL <= 0 {
		return errors.New("confirmation code TTL must be > 0")
	}
	if c.Confirmation.MaxAttempts <= 0 {
		return errors.New("confirmation max attempts must be > 0")
	}
	if c.RateLimit.MaxSignInFailures < 0 || c.RateLimit.MaxResends < 0 {
		return errors.New("rate limit budgets must be >= 0")
	}
	if c.RateLimit.MaxSignInFailures > 0 && c.RateLimit.SignInCooldown <= 0 {
		return errors.New("sign-in cooldown must be > 0 when failures are limited")
	}
	if c.RateLimit.MaxResends > 0 && c.RateLimit.ResendWindow <= 0 {
		return errors.New("resend window must be > 0 when resends are limited")
	}
	if c.Groups.Default == "" {
		return errors.New("default group must not be empty")
	}
	return nil
}

func (c Config) groupFor(userType string) string {
	if g, ok := c.Groups.ByUserType[userType]; ok && g != "" {
		return g
	}
	return c.Groups.Default
}
