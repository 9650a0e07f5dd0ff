package stepAuth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestConfirmation(t *testing.T, p *fakeProvider) (*Confirmation, *tickerFactory) {
	t.Helper()
	engine := newTestEngine(t, p)
	factory := &tickerFactory{}
	engine.newTicker = factory.new

	c, err := engine.StartConfirmation(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("start confirmation: %v", err)
	}
	t.Cleanup(c.Close)
	return c, factory
}

func TestConfirmationPasteFillsCells(t *testing.T) {
	c, _ := newTestConfirmation(t, newFakeProvider())

	if n := c.Paste("987654321"); n != 6 {
		t.Fatalf("expected 6 digits placed, got %d", n)
	}
	if got := strings.Join(c.Cells(), ""); got != "987654" {
		t.Fatalf("expected 987654, got %s", got)
	}
	if c.Focus() != 5 {
		t.Fatalf("expected focus on last cell, got %d", c.Focus())
	}
}

func TestConfirmationPasteStripsNonDigits(t *testing.T) {
	c, _ := newTestConfirmation(t, newFakeProvider())

	c.Paste("12-3")
	if got := c.Cells(); got[0] != "1" || got[2] != "3" || got[3] != "" {
		t.Fatalf("unexpected cells %v", got)
	}
	if c.Focus() != 3 {
		t.Fatalf("expected focus on next empty cell, got %d", c.Focus())
	}
}

func TestConfirmationTypingAndBackspace(t *testing.T) {
	c, _ := newTestConfirmation(t, newFakeProvider())

	for _, r := range "12a" {
		c.Type(r)
	}
	if c.Code() != "12" || c.Focus() != 2 {
		t.Fatalf("expected code 12 focus 2, got %q %d", c.Code(), c.Focus())
	}

	c.Backspace()
	if c.Focus() != 1 || c.Code() != "12" {
		t.Fatalf("expected focus moved back on empty cell, got %d %q", c.Focus(), c.Code())
	}
	c.Backspace()
	if c.Code() != "1" || c.Focus() != 1 {
		t.Fatalf("expected cell cleared in place, got %q %d", c.Code(), c.Focus())
	}

	if !c.TypeAt(4, '9') || c.Cells()[4] != "9" || c.Focus() != 5 {
		t.Fatalf("unexpected state after TypeAt: %v focus %d", c.Cells(), c.Focus())
	}
}

func TestConfirmationIncompleteCodeMakesNoCall(t *testing.T) {
	p := newFakeProvider()
	c, _ := newTestConfirmation(t, p)
	c.Paste("12345")

	err := c.Submit(context.Background())
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Reason != ReasonIncompleteCode {
		t.Fatalf("expected incomplete code error, got %v", err)
	}
	if p.count("confirm") != 0 {
		t.Fatal("expected no provider call")
	}
	if c.Code() != "12345" {
		t.Fatal("expected cells kept")
	}
}

func TestConfirmationSubmitSuccessCloses(t *testing.T) {
	p := newFakeProvider()
	c, _ := newTestConfirmation(t, p)
	c.Paste("123456")

	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if p.codes[0] != "123456" {
		t.Fatalf("unexpected code sent %q", p.codes[0])
	}
	if err := c.Submit(context.Background()); !errors.Is(err, ErrConfirmationClosed) {
		t.Fatalf("expected ErrConfirmationClosed, got %v", err)
	}
	if c.Type('1') {
		t.Fatal("expected typing ignored after close")
	}
}

func TestConfirmationRejectionClearsCells(t *testing.T) {
	tests := []struct {
		name string
		kind RejectionKind
		want error
	}{
		{name: "mismatch", kind: RejectCodeMismatch, want: ErrCodeMismatch},
		{name: "expired", kind: RejectCodeExpired, want: ErrCodeExpired},
		{name: "other", kind: RejectOther, want: ErrConfirmationRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			p.confirm = func(context.Context, string, string) error { return Reject(tt.kind, "") }
			c, _ := newTestConfirmation(t, p)
			c.Paste("123456")

			err := c.Submit(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if c.Code() != "" || c.Focus() != 0 {
				t.Fatalf("expected cleared cells and focus 0, got %q %d", c.Code(), c.Focus())
			}
		})
	}
}

func TestConfirmationTransportFailureKeepsCells(t *testing.T) {
	p := newFakeProvider()
	p.confirm = func(context.Context, string, string) error { return errors.New("network down") }
	c, _ := newTestConfirmation(t, p)
	c.Paste("123456")

	if err := c.Submit(context.Background()); !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if c.Code() != "123456" {
		t.Fatalf("expected cells kept, got %q", c.Code())
	}
}

func TestConfirmationResendCooldown(t *testing.T) {
	p := newFakeProvider()
	c, factory := newTestConfirmation(t, p)
	c.Paste("123")
	ctx := context.Background()

	if !c.CanResend() {
		t.Fatal("expected resend available initially")
	}
	if err := c.Resend(ctx); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if c.Code() != "" {
		t.Fatal("expected resend to clear the code")
	}
	if c.CooldownRemaining() != 60*time.Second || c.CanResend() {
		t.Fatalf("expected 60s cooldown, got %v", c.CooldownRemaining())
	}

	if err := c.Resend(ctx); !errors.Is(err, ErrResendCooldown) {
		t.Fatalf("expected ErrResendCooldown, got %v", err)
	}
	if p.count("resend") != 1 {
		t.Fatalf("expected one provider call, got %d", p.count("resend"))
	}

	mt := factory.last(t)
	for i := 0; i < 60; i++ {
		if !mt.tick(t) {
			t.Fatalf("ticker stopped early after %d ticks", i)
		}
	}
	waitFor(t, func() bool { return c.CooldownRemaining() == 0 })

	if !c.CanResend() {
		t.Fatal("expected resend re-enabled after cooldown")
	}
	if err := c.Resend(ctx); err != nil {
		t.Fatalf("second resend: %v", err)
	}
	if p.count("resend") != 2 {
		t.Fatalf("expected two provider calls, got %d", p.count("resend"))
	}
}

func TestConfirmationResendFailureReenables(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "rejected", err: Reject(RejectRateLimited, "Attempt limit exceeded"), want: ErrResendRejected},
		{name: "transport", err: errors.New("timeout"), want: ErrTransportFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			p.resend = func(context.Context, string) error { return tt.err }
			c, _ := newTestConfirmation(t, p)

			if err := c.Resend(context.Background()); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if c.CooldownRemaining() != 0 || !c.CanResend() {
				t.Fatalf("expected cooldown cancelled, got %v", c.CooldownRemaining())
			}
		})
	}
}

func TestConfirmationTickDecrements(t *testing.T) {
	c, factory := newTestConfirmation(t, newFakeProvider())
	if err := c.Resend(context.Background()); err != nil {
		t.Fatalf("resend: %v", err)
	}

	factory.last(t).tick(t)
	waitFor(t, func() bool { return c.CooldownRemaining() == 59*time.Second })
}

func TestStartConfirmationEmailFallback(t *testing.T) {
	engine := newTestEngine(t, newFakeProvider())
	ctx := context.Background()

	if _, err := engine.StartConfirmation(ctx, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error without email, got %v", err)
	}

	engine.rememberEmail(ctx, "cached@b.com")
	c, err := engine.StartConfirmation(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Close()
	if c.Email() != "cached@b.com" {
		t.Fatalf("expected cached email, got %q", c.Email())
	}
}
