package flows

import (
	"strings"

	"github.com/MrEthical07/stepAuth/internal/rules"
)

// Step mirrors the public sign-in step without importing the root package.
type Step int

const (
	StepCredentials Step = iota
	StepQuestion
	StepCipher
	StepComplete
	StepFailed
)

// OutcomeKind enumerates the provider answers to authenticate and
// submitChallengeAnswer.
type OutcomeKind int

const (
	OutcomeInvalid OutcomeKind = iota
	OutcomeNextChallenge
	OutcomeComplete
	OutcomePasswordResetRequired
	OutcomeMFASetupRequired
	OutcomeRejected
)

// Outcome is the flattened provider answer.
type Outcome struct {
	Kind       OutcomeKind
	Fields     map[string]string
	Handle     string
	Attributes map[string]string

	// Unconfirmed is set when a rejection reports an account that has not
	// finished registration confirmation.
	Unconfirmed bool
}

type SignInErrors struct {
	CredentialRejected      error
	UnconfirmedAccount      error
	ChallengeAnswerRejected error
	UnrecognizedChallenge   error
	PasswordResetRequired   error
	MFASetupRequired        error
}

type SignInDeps struct {
	RoleKeys            []string
	AdminValues         []string
	CustomerDestination string
	AdminDestination    string

	Errors SignInErrors
}

// Transition is the resolved effect of one provider outcome on an attempt.
type Transition struct {
	Step        Step
	Kind        ChallengeKind
	Handle      string
	Fields      map[string]string
	Attributes  map[string]string
	Admin       bool
	Destination string
	Err         error

	// Retain means the attempt keeps its step and handle; only Err changes.
	Retain bool
	// ConfirmRedirect asks the caller to route the email to confirmation.
	ConfirmRedirect bool
}

// ResolveOutcome maps a provider outcome received while at step from into the
// next transition. It never reuses a handle other than the one in out.
func ResolveOutcome(deps SignInDeps, from Step, out Outcome) Transition {
	switch out.Kind {
	case OutcomeNextChallenge:
		kind := Classify(out.Fields)
		if kind == KindUnrecognized || out.Handle == "" {
			return failed(deps.Errors.UnrecognizedChallenge)
		}
		step := StepQuestion
		if kind == KindCipher {
			step = StepCipher
		}
		return Transition{
			Step:   step,
			Kind:   kind,
			Handle: out.Handle,
			Fields: cloneFields(out.Fields),
		}

	case OutcomeComplete:
		admin := IsAdmin(deps.RoleKeys, deps.AdminValues, out.Attributes)
		dest := deps.CustomerDestination
		if admin {
			dest = deps.AdminDestination
		}
		return Transition{
			Step:        StepComplete,
			Attributes:  cloneFields(out.Attributes),
			Admin:       admin,
			Destination: dest,
		}

	case OutcomePasswordResetRequired:
		return failed(deps.Errors.PasswordResetRequired)

	case OutcomeMFASetupRequired:
		return failed(deps.Errors.MFASetupRequired)

	case OutcomeRejected:
		if from == StepQuestion || from == StepCipher {
			return Transition{
				Step:   from,
				Retain: true,
				Err:    deps.Errors.ChallengeAnswerRejected,
			}
		}
		if out.Unconfirmed {
			t := failed(deps.Errors.UnconfirmedAccount)
			t.ConfirmRedirect = true
			return t
		}
		return failed(deps.Errors.CredentialRejected)
	}

	return failed(deps.Errors.UnrecognizedChallenge)
}

func failed(err error) Transition {
	return Transition{Step: StepFailed, Err: err}
}

// NormalizeAnswer applies the per-step answer policy. Question answers are
// lowercased and trimmed, cipher answers are trimmed with casing preserved.
// ok is false when nothing is left to submit.
func NormalizeAnswer(kind ChallengeKind, answer string) (normalized string, ok bool) {
	switch kind {
	case KindQuestion:
		normalized = rules.NormalizeAnswer(answer)
	case KindCipher:
		normalized = rules.NormalizeCipherAnswer(answer)
	default:
		return "", false
	}
	return normalized, normalized != ""
}

// IsAdmin reports whether any of the role attributes carries an admin value.
// Attribute values may be comma separated lists, optionally bracketed.
func IsAdmin(keys, adminValues []string, attrs map[string]string) bool {
	for _, key := range keys {
		raw, ok := attrs[key]
		if !ok {
			continue
		}
		raw = strings.Trim(strings.TrimSpace(raw), "[]")
		for _, v := range strings.Split(raw, ",") {
			v = strings.Trim(strings.TrimSpace(v), `"`)
			if v == "" {
				continue
			}
			for _, admin := range adminValues {
				if strings.EqualFold(v, admin) {
					return true
				}
			}
		}
	}
	return false
}

func cloneFields(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
