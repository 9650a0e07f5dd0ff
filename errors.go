package stepAuth

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrCredentialRejected reports an unknown user or a wrong password.
	ErrCredentialRejected = errors.New("credentials rejected")
	// ErrUnconfirmedAccount reports an account that has not confirmed its registration code.
	ErrUnconfirmedAccount = errors.New("account not confirmed")
	// ErrChallengeAnswerRejected is the uniform rejection of a question or cipher answer.
	ErrChallengeAnswerRejected = errors.New("challenge answer rejected")
	// ErrCodeMismatch reports a wrong confirmation code.
	ErrCodeMismatch = errors.New("confirmation code mismatch")
	// ErrCodeExpired reports an expired or exhausted confirmation code.
	ErrCodeExpired = errors.New("confirmation code expired")
	// ErrUnrecognizedChallenge reports a descriptor that is neither a question nor a cipher.
	ErrUnrecognizedChallenge = errors.New("unrecognized challenge")
	// ErrTransportFailure is matched by every *ProviderError.
	ErrTransportFailure = errors.New("identity provider unreachable")
	// ErrPasswordResetRequired reports a provider demand for a new password.
	ErrPasswordResetRequired = errors.New("password reset required")
	// ErrMFASetupRequired reports a provider demand for MFA setup.
	ErrMFASetupRequired = errors.New("mfa setup required")
	// ErrAccountExists reports a registration for an email that is already enrolled.
	ErrAccountExists = errors.New("account already exists")
	// ErrRegistrationRejected reports any other provider refusal of an enrollment.
	ErrRegistrationRejected = errors.New("registration rejected")
	// ErrConfirmationRejected reports a confirmation refusal other than mismatch or expiry.
	ErrConfirmationRejected = errors.New("confirmation rejected")
	// ErrResendRejected reports a provider refusal to resend the confirmation code.
	ErrResendRejected = errors.New("resend rejected")

	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrAttemptSpent is returned when a replaced or abandoned Attempt is used again.
	ErrAttemptSpent = errors.New("sign-in attempt already spent")
	// ErrAttemptFinished is returned when answering an Attempt that is complete or failed.
	ErrAttemptFinished = errors.New("sign-in attempt finished")
	// ErrActionInFlight is returned while another provider call for the same owner is pending.
	ErrActionInFlight = errors.New("action already in flight")
	// ErrResendCooldown is returned when resend is requested before the cooldown ends.
	ErrResendCooldown = errors.New("resend cooldown active")
	// ErrEnrollmentSpent is returned when a registered Enrollment is reused.
	ErrEnrollmentSpent = errors.New("enrollment already registered")
	// ErrConfirmationClosed is returned by a Confirmation after success or Close.
	ErrConfirmationClosed = errors.New("confirmation closed")
)

// ValidationReason names the local rule an input failed.
type ValidationReason string

const (
	ReasonMissingField       ValidationReason = "missing_field"
	ReasonEmailShape         ValidationReason = "email_shape"
	ReasonPasswordTooShort   ValidationReason = "password_too_short"
	ReasonPasswordMismatch   ValidationReason = "password_mismatch"
	ReasonDuplicateQuestions ValidationReason = "duplicate_questions"
	ReasonUnknownQuestion    ValidationReason = "unknown_question"
	ReasonUnknownUserType    ValidationReason = "unknown_user_type"
	ReasonCipherMismatch     ValidationReason = "cipher_mismatch"
	ReasonEmptyAnswer        ValidationReason = "empty_answer"
	ReasonIncompleteCode     ValidationReason = "incomplete_code"
)

// ValidationError is a local, pre-network rejection. Nothing was sent to the
// provider and the caller can correct the input and retry.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	return "stepAuth: validation failed: " + string(e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(reason ValidationReason, message string) *ValidationError {
	return &ValidationError{Reason: reason, Message: message}
}

// ProviderError wraps a provider call that failed to return an answer. The
// state that issued the call is left as it was.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stepAuth: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == ErrTransportFailure
}

// Message returns the text a presentation layer shows for err.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) && ve.Message != "" {
		return ve.Message
	}

	var rej *Rejection
	if errors.Is(err, ErrCredentialRejected) && errors.As(err, &rej) && rej.Message != "" {
		return rej.Message
	}

	switch {
	case errors.Is(err, ErrCredentialRejected):
		return "Incorrect email or password."
	case errors.Is(err, ErrUnconfirmedAccount):
		return "Your account is not confirmed yet. Redirecting to verification..."
	case errors.Is(err, ErrChallengeAnswerRejected):
		return "Challenge response failed. Please try again."
	case errors.Is(err, ErrCodeMismatch):
		return "Invalid OTP code. Please try again."
	case errors.Is(err, ErrCodeExpired):
		return "OTP code has expired. Please resend the code."
	case errors.Is(err, ErrUnrecognizedChallenge):
		return "Unexpected challenge received. Please sign in again."
	case errors.Is(err, ErrPasswordResetRequired):
		return "A password reset is required before you can sign in."
	case errors.Is(err, ErrMFASetupRequired):
		return "Additional sign-in setup is required for this account."
	case errors.Is(err, ErrAccountExists):
		return "An account with this email already exists."
	case errors.Is(err, ErrConfirmationRejected):
		return "User cannot be confirmed. Please sign up again."
	case errors.Is(err, ErrResendCooldown):
		return "Please wait before requesting another code."
	case errors.Is(err, ErrActionInFlight):
		return "Please wait for the current request to finish."
	case errors.Is(err, ErrAttemptSpent), errors.Is(err, ErrAttemptFinished):
		return "This sign-in attempt is no longer active. Please sign in again."
	case errors.Is(err, ErrTransportFailure):
		return "Something went wrong. Please try again."
	}

	if errors.As(err, &rej) && rej.Message != "" {
		return rej.Message
	}
	switch {
	case errors.Is(err, ErrRegistrationRejected):
		return "Registration failed. Please try again."
	case errors.Is(err, ErrResendRejected):
		return "Failed to resend OTP. Please try again."
	}
	return err.Error()
}
