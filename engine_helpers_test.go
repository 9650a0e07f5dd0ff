package stepAuth

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeProvider struct {
	mu sync.Mutex

	authenticate func(ctx context.Context, email, password string) (ChallengeOutcome, error)
	submit       func(ctx context.Context, handle, answer string) (ChallengeOutcome, error)
	confirm      func(ctx context.Context, email, code string) error
	resend       func(ctx context.Context, email string) error
	register     func(ctx context.Context, record EnrollmentRecord) error

	calls   map[string]int
	handles []string
	answers []string
	codes   []string
	records []EnrollmentRecord
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: make(map[string]int)}
}

func (p *fakeProvider) record(op string) {
	p.mu.Lock()
	p.calls[op]++
	p.mu.Unlock()
}

func (p *fakeProvider) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *fakeProvider) Authenticate(ctx context.Context, email, password string) (ChallengeOutcome, error) {
	p.record("authenticate")
	if p.authenticate == nil {
		return Rejected(RejectInvalidCredentials, ""), nil
	}
	return p.authenticate(ctx, email, password)
}

func (p *fakeProvider) SubmitChallengeAnswer(ctx context.Context, handle, answer string) (ChallengeOutcome, error) {
	p.record("submit")
	p.mu.Lock()
	p.handles = append(p.handles, handle)
	p.answers = append(p.answers, answer)
	p.mu.Unlock()
	if p.submit == nil {
		return Rejected(RejectChallengeFailed, ""), nil
	}
	return p.submit(ctx, handle, answer)
}

func (p *fakeProvider) ConfirmRegistration(ctx context.Context, email, code string) error {
	p.record("confirm")
	p.mu.Lock()
	p.codes = append(p.codes, code)
	p.mu.Unlock()
	if p.confirm == nil {
		return nil
	}
	return p.confirm(ctx, email, code)
}

func (p *fakeProvider) ResendConfirmationCode(ctx context.Context, email string) error {
	p.record("resend")
	if p.resend == nil {
		return nil
	}
	return p.resend(ctx, email)
}

func (p *fakeProvider) RegisterUser(ctx context.Context, record EnrollmentRecord) error {
	p.record("register")
	p.mu.Lock()
	p.records = append(p.records, record)
	p.mu.Unlock()
	if p.register == nil {
		return nil
	}
	return p.register(ctx, record)
}

func newTestEngine(t *testing.T, p IdentityProvider, mutate ...func(*Config)) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	for _, m := range mutate {
		m(&cfg)
	}

	engine, err := New().WithConfig(cfg).WithProvider(p).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// manualTicker fires only when the test sends on it.
type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.once.Do(func() { close(m.stopped) })
}

// tick delivers one tick, or returns false if the ticker was stopped.
func (m *manualTicker) tick(t *testing.T) bool {
	t.Helper()
	select {
	case m.ch <- time.Now():
		return true
	case <-m.stopped:
		return false
	case <-time.After(2 * time.Second):
		t.Fatal("ticker not consumed")
		return false
	}
}

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (f *tickerFactory) new(time.Duration) ticker {
	mt := newManualTicker()
	f.mu.Lock()
	f.tickers = append(f.tickers, mt)
	f.mu.Unlock()
	return mt
}

func (f *tickerFactory) last(t *testing.T) *manualTicker {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		t.Fatal("no ticker created")
	}
	return f.tickers[len(f.tickers)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
