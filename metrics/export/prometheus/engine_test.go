package prometheus

import (
	"context"
	"testing"

	stepAuth "github.com/MrEthical07/stepAuth"
)

type nopProvider struct{}

func (nopProvider) Authenticate(context.Context, string, string) (stepAuth.ChallengeOutcome, error) {
	return stepAuth.Rejected(stepAuth.RejectInvalidCredentials, ""), nil
}

func (nopProvider) SubmitChallengeAnswer(context.Context, string, string) (stepAuth.ChallengeOutcome, error) {
	return stepAuth.Rejected(stepAuth.RejectChallengeFailed, ""), nil
}

func (nopProvider) ConfirmRegistration(context.Context, string, string) error { return nil }

func (nopProvider) ResendConfirmationCode(context.Context, string) error { return nil }

func (nopProvider) RegisterUser(context.Context, stepAuth.EnrollmentRecord) error { return nil }

func newMetricsEngine(t *testing.T) *stepAuth.Engine {
	t.Helper()
	engine, err := stepAuth.New().
		WithProvider(nopProvider{}).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.NewEnrollment(); err != nil {
		t.Fatalf("new enrollment: %v", err)
	}
	return engine
}
