package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle       bool
	MaxSignInAttempts      int
	SignInCooldownDuration time.Duration
	MaxResends             int
	ResendWindow           time.Duration
}

// Limiter enforces per-email and per-IP budgets for failed sign-ins and
// confirmation code resends using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckSignIn checks whether the email+IP pair is within the failed sign-in
// budget. Returns an error if rate-limited.
func (l *Limiter) CheckSignIn(ctx context.Context, email, ip string) error {
	if l.config.MaxSignInAttempts <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, signInEmailKey(email), l.config.MaxSignInAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, signInIPKey(ip), l.config.MaxSignInAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementSignIn records a failed sign-in for the email+IP pair.
func (l *Limiter) IncrementSignIn(ctx context.Context, email, ip string) error {
	if l.config.MaxSignInAttempts <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, signInEmailKey(email), l.config.SignInCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSignInAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, signInIPKey(ip), l.config.SignInCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxSignInAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetSignIn clears the failed sign-in counter for the email+IP pair.
// Called after a completed sign-in.
func (l *Limiter) ResetSignIn(ctx context.Context, email, ip string) error {
	keys := []string{signInEmailKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, signInIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// CheckResend counts one confirmation code resend for email and enforces the
// resend budget of the current window.
func (l *Limiter) CheckResend(ctx context.Context, email string) error {
	if l.config.MaxResends <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, resendKey(email), l.config.ResendWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResends) {
		return ErrRateLimited
	}

	return nil
}

// GetSignInAttempts returns the current failed sign-in counter for an email.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) GetSignInAttempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, signInEmailKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func signInEmailKey(email string) string { return "srl:e:" + email }

func signInIPKey(ip string) string { return "srl:ip:" + ip }

func resendKey(email string) string { return "srr:" + email }
