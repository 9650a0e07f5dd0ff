package stepAuth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/stepAuth/cipher"
	"github.com/MrEthical07/stepAuth/internal/audit"
	"github.com/MrEthical07/stepAuth/internal/flows"
)

// Engine drives enrollment, sign-in and confirmation against an
// IdentityProvider.
//
// Engine methods are safe for concurrent use. Each Attempt, Enrollment and
// Confirmation it hands out has a single owner.
type Engine struct {
	config     Config
	provider   IdentityProvider
	generator  *cipher.Generator
	genMu      sync.Mutex
	emailCache EmailCache
	logger     *slog.Logger
	metrics    *Metrics
	audit      *audit.Dispatcher
	deps       flows.Deps
	newTicker  func(time.Duration) ticker
}

// ticker is the cooldown clock. Tests substitute a manual one.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func newRealTicker(d time.Duration) ticker {
	return realTicker{t: time.NewTicker(d)}
}

func (r realTicker) C() <-chan time.Time { return r.t.C }

func (r realTicker) Stop() { r.t.Stop() }

func (e *Engine) initFlowDeps() {
	cfg := e.config
	e.deps = flows.Deps{
		SignIn: flows.SignInDeps{
			RoleKeys:            cfg.Challenge.RoleAttributes,
			AdminValues:         cfg.Challenge.AdminValues,
			CustomerDestination: cfg.Destinations.Customer,
			AdminDestination:    cfg.Destinations.Admin,
			Errors: flows.SignInErrors{
				CredentialRejected:      ErrCredentialRejected,
				UnconfirmedAccount:      ErrUnconfirmedAccount,
				ChallengeAnswerRejected: ErrChallengeAnswerRejected,
				UnrecognizedChallenge:   ErrUnrecognizedChallenge,
				PasswordResetRequired:   ErrPasswordResetRequired,
				MFASetupRequired:        ErrMFASetupRequired,
			},
		},
		Enrollment: flows.EnrollmentDeps{
			MinPasswordLength: cfg.Enrollment.MinPasswordLength,
			Questions:         cfg.Enrollment.Questions,
			UserTypes:         []string{string(UserTypeCustomer), string(UserTypeAdmin)},
		},
	}
}

func (e *Engine) ready() error {
	if e == nil || e.provider == nil || e.generator == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events never reached the sink.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled or the engine is nil.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SecurityQuestions returns the configured question catalog.
func (e *Engine) SecurityQuestions() []string {
	if e == nil {
		return nil
	}
	return cloneStrings(e.config.Enrollment.Questions)
}

// LastEmail returns the cached email of the last sign-in or registration, or
// "" when none is cached or the cache fails.
func (e *Engine) LastEmail(ctx context.Context) string {
	if e == nil || e.emailCache == nil {
		return ""
	}
	email, err := e.emailCache.Recall(ctx)
	if err != nil {
		if !errors.Is(err, ErrEmailNotCached) {
			e.logger.Warn("stepAuth: email cache read failed", slog.Any("error", err))
		}
		return ""
	}
	return email
}

func (e *Engine) rememberEmail(ctx context.Context, email string) {
	if e.emailCache == nil || email == "" {
		return
	}
	if err := e.emailCache.Remember(ctx, email); err != nil {
		e.logger.Warn("stepAuth: email cache write failed", slog.Any("error", err))
	}
}

// forgetEmail drops the cached email once a sign-in no longer needs recovery.
func (e *Engine) forgetEmail(ctx context.Context) {
	if e.emailCache == nil {
		return
	}
	if err := e.emailCache.Forget(ctx); err != nil {
		e.logger.Warn("stepAuth: email cache clear failed", slog.Any("error", err))
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// observe times one provider call.
func (e *Engine) observe(start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricProviderLatency, time.Since(start))
}

func (e *Engine) newPuzzle() (cipher.Puzzle, error) {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	p, err := e.generator.NewPuzzle()
	if err == nil {
		e.metricInc(MetricPuzzleGenerated)
	}
	return p, err
}
