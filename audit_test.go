package stepAuth

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestAuditSignInEvents(t *testing.T) {
	sink := NewChannelSink(32)
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true

	engine, err := New().WithConfig(cfg).WithProvider(scenarioProvider()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := WithUserAgent(WithClientIP(context.Background(), "10.0.0.1"), "test-agent")
	a, err := engine.SignIn(ctx, Credential{Email: "a@b.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := engine.Answer(ctx, a, "wrong"); err == nil {
		t.Fatal("expected rejection")
	}
	engine.Close()

	want := []string{auditEventSignInStarted, auditEventChallengeIssued, auditEventChallengeRejected}
	for i, eventType := range want {
		select {
		case ev := <-sink.Events():
			if ev.EventType != eventType {
				t.Fatalf("expected %s, got %s", eventType, ev.EventType)
			}
			if ev.Seq != uint64(i+1) || ev.Final {
				t.Fatalf("unexpected trail position seq=%d final=%v", ev.Seq, ev.Final)
			}
			if ev.IP != "10.0.0.1" || ev.UserAgent != "test-agent" || ev.AttemptID != a.ID() {
				t.Fatalf("unexpected event context %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", eventType)
		}
	}
}

func TestAuditAbandonClosesTrail(t *testing.T) {
	sink := NewChannelSink(32)
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true

	engine, err := New().WithConfig(cfg).WithProvider(scenarioProvider()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := context.Background()
	a, err := engine.SignIn(ctx, Credential{Email: "a@b.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	engine.Abandon(a)
	engine.Abandon(a)
	engine.Close()

	var events []AuditEvent
	for len(sink.Events()) > 0 {
		events = append(events, <-sink.Events())
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	last := events[2]
	if last.EventType != auditEventSignInAbandoned || !last.Final || last.Seq != 3 || last.Step != StepQuestion.String() {
		t.Fatalf("unexpected closing event %+v", last)
	}
}

func TestAuditJSONOmitsSecrets(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	engine, err := New().WithConfig(cfg).WithProvider(scenarioProvider()).WithAuditSink(NewJSONWriterSink(&buf)).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := context.Background()
	a, _ := engine.SignIn(ctx, Credential{Email: "a@b.com", Password: "hunter22"})
	a, _ = engine.Answer(ctx, a, "rex")
	_, _ = engine.Answer(ctx, a, "HELLO")
	engine.Close()

	out := buf.String()
	for _, secret := range []string{"hunter22", "rex", "HELLO", "h1", "h2"} {
		if strings.Contains(out, `"`+secret+`"`) {
			t.Fatalf("audit output leaked %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, auditEventSignInComplete) {
		t.Fatalf("expected completion event, got %s", out)
	}
}

func TestAuditErrorCodes(t *testing.T) {
	if auditErrorCode(nil) != "" {
		t.Fatal("expected empty code for nil")
	}
	if auditErrorCode(ErrUnconfirmedAccount) != auditErrUnconfirmed {
		t.Fatal("unexpected unconfirmed code")
	}
	if auditErrorCode(&ProviderError{Op: "x", Err: context.Canceled}) != auditErrUnavailable {
		t.Fatal("unexpected transport code")
	}
}
