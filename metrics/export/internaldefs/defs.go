package internaldefs

import (
	stepAuth "github.com/MrEthical07/stepAuth"
)

// BucketCount is the number of latency buckets in an engine snapshot.
const BucketCount = 8

type CounterDef struct {
	ID   stepAuth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   stepAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed order.
var CounterDefs = []CounterDef{
	{ID: stepAuth.MetricSignInStarted, Name: "stepauth_signin_started_total", Help: "Credential submissions that reached the provider."},
	{ID: stepAuth.MetricChallengeIssued, Name: "stepauth_challenge_issued_total", Help: "Challenges presented to a user."},
	{ID: stepAuth.MetricChallengeQuestion, Name: "stepauth_challenge_question_total", Help: "Security question challenges presented."},
	{ID: stepAuth.MetricChallengeCipher, Name: "stepauth_challenge_cipher_total", Help: "Cipher puzzle challenges presented."},
	{ID: stepAuth.MetricChallengeRejected, Name: "stepauth_challenge_rejected_total", Help: "Challenge answers rejected by the provider."},
	{ID: stepAuth.MetricChallengeUnrecognized, Name: "stepauth_challenge_unrecognized_total", Help: "Challenge descriptors that matched no known step."},
	{ID: stepAuth.MetricSignInComplete, Name: "stepauth_signin_complete_total", Help: "Sign-ins that completed every factor."},
	{ID: stepAuth.MetricSignInCompleteAdmin, Name: "stepauth_signin_complete_admin_total", Help: "Completed sign-ins routed to the admin destination."},
	{ID: stepAuth.MetricSignInFailed, Name: "stepauth_signin_failed_total", Help: "Sign-in attempts that ended failed."},
	{ID: stepAuth.MetricCredentialRejected, Name: "stepauth_credential_rejected_total", Help: "Credential submissions rejected by the provider."},
	{ID: stepAuth.MetricUnconfirmedAccount, Name: "stepauth_unconfirmed_account_total", Help: "Sign-ins refused for an unconfirmed account."},
	{ID: stepAuth.MetricValidationRejected, Name: "stepauth_validation_rejected_total", Help: "Inputs rejected locally before any provider call."},
	{ID: stepAuth.MetricTransportFailure, Name: "stepauth_transport_failure_total", Help: "Provider calls that failed without an answer."},
	{ID: stepAuth.MetricEnrollmentRejected, Name: "stepauth_enrollment_rejected_total", Help: "Enrollments rejected locally or by the provider."},
	{ID: stepAuth.MetricEnrollmentRegistered, Name: "stepauth_enrollment_registered_total", Help: "Enrollments accepted by the provider."},
	{ID: stepAuth.MetricPuzzleGenerated, Name: "stepauth_puzzle_generated_total", Help: "Cipher puzzles generated for enrollment."},
	{ID: stepAuth.MetricConfirmationSuccess, Name: "stepauth_confirmation_success_total", Help: "Registrations confirmed with a code."},
	{ID: stepAuth.MetricConfirmationRejected, Name: "stepauth_confirmation_rejected_total", Help: "Confirmation codes rejected by the provider."},
	{ID: stepAuth.MetricConfirmationResent, Name: "stepauth_confirmation_resent_total", Help: "Confirmation codes resent."},
	{ID: stepAuth.MetricResendBlocked, Name: "stepauth_resend_blocked_total", Help: "Resend requests refused during the cooldown."},
}

var HistogramDefs = []HistogramDef{
	{ID: stepAuth.MetricProviderLatency, Name: "stepauth_provider_latency_seconds", Help: "Identity provider call latency."},
}

// HistogramBounds are the upper bounds of the engine buckets in seconds.
var HistogramBounds = [BucketCount]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bound in instrument names.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// Cumulative turns the per-bucket counts of a snapshot into cumulative
// counts. Missing buckets count as zero.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
