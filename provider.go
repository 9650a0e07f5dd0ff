package stepAuth

import (
	"context"

	"github.com/MrEthical07/stepAuth/internal/flows"
)

// IdentityProvider is the external collaborator that owns accounts and judges
// every answer.
//
// A non-nil error from any method is a transport failure: the call did not
// produce an answer. Refusals are answers, not failures; Authenticate and
// SubmitChallengeAnswer report them as a Rejected outcome, the other methods
// return a *Rejection.
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, password string) (ChallengeOutcome, error)
	SubmitChallengeAnswer(ctx context.Context, handle, answer string) (ChallengeOutcome, error)
	ConfirmRegistration(ctx context.Context, email, code string) error
	ResendConfirmationCode(ctx context.Context, email string) error
	RegisterUser(ctx context.Context, record EnrollmentRecord) error
}

// OutcomeKind tags a ChallengeOutcome.
type OutcomeKind int

const (
	OutcomeNextChallenge         OutcomeKind = OutcomeKind(flows.OutcomeNextChallenge)
	OutcomeComplete              OutcomeKind = OutcomeKind(flows.OutcomeComplete)
	OutcomePasswordResetRequired OutcomeKind = OutcomeKind(flows.OutcomePasswordResetRequired)
	OutcomeMFASetupRequired      OutcomeKind = OutcomeKind(flows.OutcomeMFASetupRequired)
	OutcomeRejected              OutcomeKind = OutcomeKind(flows.OutcomeRejected)
)

// ChallengeOutcome is the provider's answer to a credential or challenge
// submission. Build it with the constructors below.
type ChallengeOutcome struct {
	Kind       OutcomeKind
	Descriptor ChallengeDescriptor
	Handle     string
	Attributes map[string]string
	Rejection  *Rejection
}

func NextChallenge(descriptor ChallengeDescriptor, handle string) ChallengeOutcome {
	return ChallengeOutcome{Kind: OutcomeNextChallenge, Descriptor: descriptor, Handle: handle}
}

func Complete(attributes map[string]string) ChallengeOutcome {
	return ChallengeOutcome{Kind: OutcomeComplete, Attributes: attributes}
}

func PasswordResetRequired() ChallengeOutcome {
	return ChallengeOutcome{Kind: OutcomePasswordResetRequired}
}

func MFASetupRequired() ChallengeOutcome {
	return ChallengeOutcome{Kind: OutcomeMFASetupRequired}
}

func Rejected(kind RejectionKind, message string) ChallengeOutcome {
	return ChallengeOutcome{Kind: OutcomeRejected, Rejection: &Rejection{Kind: kind, Message: message}}
}

// RejectionKind is the provider's reason for refusing a request.
type RejectionKind int

const (
	RejectOther RejectionKind = iota
	RejectInvalidCredentials
	RejectUserNotConfirmed
	RejectUserExists
	RejectInvalidEnrollment
	RejectChallengeFailed
	RejectCodeMismatch
	RejectCodeExpired
	RejectRateLimited
)

func (k RejectionKind) String() string {
	switch k {
	case RejectInvalidCredentials:
		return "invalid_credentials"
	case RejectUserNotConfirmed:
		return "user_not_confirmed"
	case RejectUserExists:
		return "user_exists"
	case RejectInvalidEnrollment:
		return "invalid_enrollment"
	case RejectChallengeFailed:
		return "challenge_failed"
	case RejectCodeMismatch:
		return "code_mismatch"
	case RejectCodeExpired:
		return "code_expired"
	case RejectRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// Rejection is a provider refusal. It is an answer, not a transport failure.
type Rejection struct {
	Kind    RejectionKind
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return "stepAuth: provider rejected request: " + r.Kind.String()
	}
	return "stepAuth: provider rejected request: " + r.Kind.String() + ": " + r.Message
}

// Reject builds a *Rejection for the error-returning provider methods.
func Reject(kind RejectionKind, message string) *Rejection {
	return &Rejection{Kind: kind, Message: message}
}

func (o ChallengeOutcome) flow() flows.Outcome {
	out := flows.Outcome{
		Kind:       flows.OutcomeKind(o.Kind),
		Fields:     o.Descriptor,
		Handle:     o.Handle,
		Attributes: o.Attributes,
	}
	if o.Rejection != nil && o.Rejection.Kind == RejectUserNotConfirmed {
		out.Unconfirmed = true
	}
	return out
}
