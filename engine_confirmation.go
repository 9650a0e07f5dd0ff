package stepAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/stepAuth/internal/flows"
	"github.com/MrEthical07/stepAuth/internal/rules"
)

// Confirmation tracks entry of a registration confirmation code and the
// resend cooldown. Editing methods are no-ops once it is closed.
type Confirmation struct {
	engine *Engine
	email  string

	mu        sync.Mutex
	buf       *flows.CodeBuffer
	busy      bool
	closed    bool
	remaining time.Duration
	stop      chan struct{}
}

// StartConfirmation describes the startconfirmation operation and its observable behavior.
//
// StartConfirmation opens code entry for email. A blank email falls back to
// the cached last email; with neither it fails with a *ValidationError.
func (e *Engine) StartConfirmation(ctx context.Context, email string) (*Confirmation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = rules.NormalizeEmail(email)
	if email == "" {
		email = e.LastEmail(ctx)
	}
	if email == "" {
		return nil, newValidationError(ReasonMissingField, "No email provided. Please sign up again.")
	}

	return &Confirmation{
		engine: e,
		email:  email,
		buf:    flows.NewCodeBuffer(e.config.Confirmation.CodeLength),
	}, nil
}

func (c *Confirmation) Email() string { return c.email }

// Type writes r into the focused cell and advances focus.
func (c *Confirmation) Type(r rune) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	return c.buf.Type(r)
}

// TypeAt focuses cell i and types r there.
func (c *Confirmation) TypeAt(i int, r rune) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.buf.SetFocus(i)
	return c.buf.Type(r)
}

func (c *Confirmation) Backspace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.buf.Backspace()
}

// Paste fills cells from the focused one with the digits of s and returns how
// many were written.
func (c *Confirmation) Paste(s string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.buf.Paste(s)
}

func (c *Confirmation) Focus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Focus()
}

// Cells returns one string per cell, "" for an empty one.
func (c *Confirmation) Cells() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, c.buf.Len())
	for i := range out {
		out[i] = c.buf.Cell(i)
	}
	return out
}

func (c *Confirmation) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Code()
}

func (c *Confirmation) Complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Complete()
}

func (c *Confirmation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// CooldownRemaining is the time left before another resend is allowed.
func (c *Confirmation) CooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Confirmation) CanResend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.busy && c.remaining <= 0
}

// Submit describes the submit operation and its observable behavior.
//
// Submit sends the code when every cell is filled. A provider rejection
// clears all cells and focuses the first one; a transport failure leaves the
// cells as they were. A successful submit closes c.
func (c *Confirmation) Submit(ctx context.Context) error {
	e := c.engine

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrConfirmationClosed
	case c.busy:
		c.mu.Unlock()
		return ErrActionInFlight
	case !c.buf.Complete():
		c.mu.Unlock()
		e.metricInc(MetricValidationRejected)
		return newValidationError(ReasonIncompleteCode,
			"Please enter a valid "+strconv.Itoa(c.buf.Len())+"-digit OTP code.")
	}
	code := c.buf.Code()
	c.busy = true
	c.mu.Unlock()

	start := time.Now()
	callErr := e.provider.ConfirmRegistration(ctx, c.email, code)
	e.observe(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if callErr == nil {
		c.closed = true
		c.stopCooldownLocked()
		e.metricInc(MetricConfirmationSuccess)
		e.emitAudit(ctx, auditEventConfirmationSuccess, true, "", c.email, StepCredentials, nil, nil)
		return nil
	}

	var rej *Rejection
	if !errors.As(callErr, &rej) {
		e.metricInc(MetricTransportFailure)
		return &ProviderError{Op: "confirm_registration", Err: callErr}
	}

	c.buf.Clear()

	var err error
	switch rej.Kind {
	case RejectCodeMismatch:
		err = fmt.Errorf("%w: %w", ErrCodeMismatch, rej)
	case RejectCodeExpired:
		err = fmt.Errorf("%w: %w", ErrCodeExpired, rej)
	default:
		err = fmt.Errorf("%w: %w", ErrConfirmationRejected, rej)
	}
	e.metricInc(MetricConfirmationRejected)
	e.emitAudit(ctx, auditEventConfirmationRejected, false, "", c.email, StepCredentials, err, nil)
	return err
}

// Resend describes the resend operation and its observable behavior.
//
// Resend asks the provider for a new code. It clears the cells and starts the
// cooldown before calling out; if the call fails the cooldown is cancelled
// so the user can retry at once.
func (c *Confirmation) Resend(ctx context.Context) error {
	e := c.engine

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrConfirmationClosed
	case c.busy:
		c.mu.Unlock()
		return ErrActionInFlight
	case c.remaining > 0:
		c.mu.Unlock()
		e.metricInc(MetricResendBlocked)
		return ErrResendCooldown
	}
	c.buf.Clear()
	c.startCooldownLocked()
	c.busy = true
	c.mu.Unlock()

	start := time.Now()
	callErr := e.provider.ResendConfirmationCode(ctx, c.email)
	e.observe(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if callErr == nil {
		e.metricInc(MetricConfirmationResent)
		e.emitAudit(ctx, auditEventConfirmationResent, true, "", c.email, StepCredentials, nil, nil)
		return nil
	}

	c.stopCooldownLocked()

	var rej *Rejection
	if errors.As(callErr, &rej) {
		err := fmt.Errorf("%w: %w", ErrResendRejected, rej)
		e.emitAudit(ctx, auditEventConfirmationResent, false, "", c.email, StepCredentials, err, nil)
		return err
	}
	e.metricInc(MetricTransportFailure)
	return &ProviderError{Op: "resend_confirmation_code", Err: callErr}
}

// Close stops the cooldown clock. Further submits and resends fail with
// ErrConfirmationClosed.
func (c *Confirmation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopCooldownLocked()
}

func (c *Confirmation) startCooldownLocked() {
	c.stopCooldownLocked()

	cfg := c.engine.config.Confirmation
	c.remaining = cfg.ResendCooldown
	stop := make(chan struct{})
	c.stop = stop
	go c.runCooldown(c.engine.newTicker(cfg.Tick), cfg.Tick, stop)
}

func (c *Confirmation) stopCooldownLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.remaining = 0
}

func (c *Confirmation) runCooldown(t ticker, step time.Duration, stop chan struct{}) {
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C():
			c.mu.Lock()
			if c.stop != stop {
				c.mu.Unlock()
				return
			}
			c.remaining -= step
			if c.remaining <= 0 {
				c.remaining = 0
				c.stop = nil
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}
