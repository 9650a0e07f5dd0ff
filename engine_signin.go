package stepAuth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/stepAuth/internal/flows"
	"github.com/MrEthical07/stepAuth/internal/rules"
	"github.com/google/uuid"
)

var errNilAttempt = errors.New("stepAuth: nil attempt")

// Attempt is one position of a sign-in in the challenge state machine. It
// carries the provider's session handle, which never leaves the package.
//
// An Attempt has a single owner. Answer returns the Attempt to continue with;
// once a transition produced a new Attempt the old one is spent.
type Attempt struct {
	id    string
	email string

	step        Step
	kind        ChallengeKind
	handle      string
	descriptor  ChallengeDescriptor
	attributes  map[string]string
	admin       bool
	destination string
	redirect    *ConfirmationRedirect

	mu    sync.Mutex
	err   error
	busy  bool
	spent bool
}

// ID is the correlation identifier shared by every Attempt of one sign-in.
func (a *Attempt) ID() string { return a.id }

func (a *Attempt) Email() string { return a.email }

func (a *Attempt) Step() Step { return a.step }

// Kind is the challenge being shown, or ChallengeUnrecognized outside the
// challenge steps.
func (a *Attempt) Kind() ChallengeKind { return a.kind }

func (a *Attempt) Question() string { return a.descriptor.Question() }

func (a *Attempt) CipherChallenge() string { return a.descriptor.CipherChallenge() }

func (a *Attempt) CipherShift() (int, bool) { return a.descriptor.CipherShift() }

// Role returns the role resolved on completion, or "" before it.
func (a *Attempt) Role() UserType {
	if a.step != StepComplete {
		return ""
	}
	if a.admin {
		return UserTypeAdmin
	}
	return UserTypeCustomer
}

// Destination is the route to open after completion.
func (a *Attempt) Destination() string { return a.destination }

// Attributes returns a copy of the completion attributes.
func (a *Attempt) Attributes() map[string]string {
	if a.attributes == nil {
		return nil
	}
	out := make(map[string]string, len(a.attributes))
	for k, v := range a.attributes {
		out[k] = v
	}
	return out
}

// Err is the error of the last transition, if any.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Redirect reports whether the attempt failed on an unconfirmed account and
// the presentation layer should open confirmation.
func (a *Attempt) Redirect() (ConfirmationRedirect, bool) {
	if a.redirect == nil {
		return ConfirmationRedirect{}, false
	}
	return *a.redirect, true
}

// Busy reports whether a provider call for this attempt is pending.
func (a *Attempt) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// SignIn describes the signin operation and its observable behavior.
//
// SignIn submits credentials. Blank fields fail locally with a
// *ValidationError and a transport failure returns a *ProviderError; neither
// produces an Attempt. Any provider answer produces one, and terminal
// answers also return the matching sentinel error.
func (e *Engine) SignIn(ctx context.Context, cred Credential) (*Attempt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := rules.NormalizeEmail(cred.Email)
	if email == "" || rules.Blank(cred.Password) {
		e.metricInc(MetricValidationRejected)
		return nil, newValidationError(ReasonMissingField, "Please fill in all fields.")
	}
	if !rules.ValidEmail(email) {
		e.metricInc(MetricValidationRejected)
		return nil, newValidationError(ReasonEmailShape, "Please enter a valid email address.")
	}

	id := uuid.NewString()
	e.metricInc(MetricSignInStarted)
	e.emitAudit(ctx, auditEventSignInStarted, true, id, email, StepCredentials, nil, nil)

	start := time.Now()
	out, err := e.provider.Authenticate(ctx, email, cred.Password)
	e.observe(start)
	if err != nil {
		e.metricInc(MetricTransportFailure)
		perr := &ProviderError{Op: "authenticate", Err: err}
		e.emitAudit(ctx, auditEventSignInFailed, false, id, email, StepCredentials, perr, nil)
		return nil, perr
	}

	e.rememberEmail(ctx, email)

	t := flows.ResolveOutcome(e.deps.SignIn, flows.StepCredentials, out.flow())
	if out.Rejection != nil && errors.Is(t.Err, ErrCredentialRejected) {
		t.Err = fmt.Errorf("%w: %w", t.Err, out.Rejection)
	}
	next := e.advance(ctx, id, email, t)
	return next, t.Err
}

// Answer describes the answer operation and its observable behavior.
//
// Answer submits the answer for the challenge a is showing and returns the
// Attempt to continue with. A rejected answer, a blank answer or a transport
// failure returns a itself, still live. Every other outcome spends a.
func (e *Engine) Answer(ctx context.Context, a *Attempt, answer string) (*Attempt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errNilAttempt
	}

	a.mu.Lock()
	switch {
	case a.spent:
		a.mu.Unlock()
		return a, ErrAttemptSpent
	case a.busy:
		a.mu.Unlock()
		return a, ErrActionInFlight
	case a.step != StepQuestion && a.step != StepCipher:
		a.mu.Unlock()
		return a, ErrAttemptFinished
	}

	normalized, ok := flows.NormalizeAnswer(flows.ChallengeKind(a.kind), answer)
	if !ok {
		a.mu.Unlock()
		e.metricInc(MetricValidationRejected)
		return a, newValidationError(ReasonEmptyAnswer, "Please provide an answer.")
	}
	a.busy = true
	a.mu.Unlock()

	start := time.Now()
	out, err := e.provider.SubmitChallengeAnswer(ctx, a.handle, normalized)
	e.observe(start)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = false

	if err != nil {
		e.metricInc(MetricTransportFailure)
		return a, &ProviderError{Op: "submit_challenge_answer", Err: err}
	}

	t := flows.ResolveOutcome(e.deps.SignIn, flows.Step(a.step), out.flow())
	if t.Retain {
		a.err = t.Err
		e.metricInc(MetricChallengeRejected)
		e.emitAudit(ctx, auditEventChallengeRejected, false, a.id, a.email, a.step, t.Err, func() map[string]string {
			return map[string]string{"challenge": a.kind.String()}
		})
		return a, t.Err
	}

	a.spent = true
	next := e.advance(ctx, a.id, a.email, t)
	return next, t.Err
}

// Abandon spends a without contacting the provider. A live attempt's audit
// trail ends with a signin_abandoned event.
func (e *Engine) Abandon(a *Attempt) {
	if a == nil {
		return
	}
	a.mu.Lock()
	live := !a.spent && !a.step.Terminal()
	a.spent = true
	a.mu.Unlock()

	if live {
		e.emitAudit(context.Background(), auditEventSignInAbandoned, false, a.id, a.email, a.step, nil, nil)
	}
}

// advance materializes a transition into a new Attempt.
func (e *Engine) advance(ctx context.Context, id, email string, t flows.Transition) *Attempt {
	next := &Attempt{
		id:          id,
		email:       email,
		step:        Step(t.Step),
		kind:        ChallengeKind(t.Kind),
		handle:      t.Handle,
		descriptor:  ChallengeDescriptor(t.Fields),
		attributes:  t.Attributes,
		admin:       t.Admin,
		destination: t.Destination,
		err:         t.Err,
	}

	switch next.step {
	case StepQuestion, StepCipher:
		e.metricInc(MetricChallengeIssued)
		if next.kind == ChallengeQuestion {
			e.metricInc(MetricChallengeQuestion)
		} else {
			e.metricInc(MetricChallengeCipher)
		}
		e.emitAudit(ctx, auditEventChallengeIssued, true, id, email, next.step, nil, func() map[string]string {
			return map[string]string{"challenge": next.kind.String()}
		})

	case StepComplete:
		e.forgetEmail(ctx)
		e.metricInc(MetricSignInComplete)
		if next.admin {
			e.metricInc(MetricSignInCompleteAdmin)
		}
		e.emitAudit(ctx, auditEventSignInComplete, true, id, email, next.step, nil, func() map[string]string {
			return map[string]string{
				"role":        string(next.Role()),
				"destination": next.destination,
			}
		})

	case StepFailed:
		e.metricInc(MetricSignInFailed)
		switch {
		case errors.Is(t.Err, ErrCredentialRejected):
			e.metricInc(MetricCredentialRejected)
		case errors.Is(t.Err, ErrUnconfirmedAccount):
			e.metricInc(MetricUnconfirmedAccount)
		case errors.Is(t.Err, ErrUnrecognizedChallenge):
			e.metricInc(MetricChallengeUnrecognized)
		}
		if t.ConfirmRedirect {
			next.redirect = &ConfirmationRedirect{
				Email: email,
				After: e.config.Challenge.UnconfirmedRedirectDelay,
			}
		}
		e.emitAudit(ctx, auditEventSignInFailed, false, id, email, next.step, t.Err, nil)
	}

	return next
}
