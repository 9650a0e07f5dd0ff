package stepAuth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignInStarted        = "signin_started"
	auditEventChallengeIssued      = "challenge_issued"
	auditEventChallengeRejected    = "challenge_rejected"
	auditEventSignInComplete       = "signin_complete"
	auditEventSignInFailed         = "signin_failed"
	auditEventSignInAbandoned      = "signin_abandoned"
	auditEventEnrollmentRejected   = "enrollment_rejected"
	auditEventEnrollmentRegistered = "enrollment_registered"
	auditEventConfirmationSuccess  = "confirmation_success"
	auditEventConfirmationRejected = "confirmation_rejected"
	auditEventConfirmationResent   = "confirmation_resent"
)

// auditFinal lists the events after which an attempt or enrollment emits
// nothing more.
var auditFinal = map[string]bool{
	auditEventSignInComplete:       true,
	auditEventSignInFailed:         true,
	auditEventSignInAbandoned:      true,
	auditEventEnrollmentRegistered: true,
	auditEventConfirmationSuccess:  true,
}

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrValidation            AuditErrorCode = "validation"
	auditErrCredentialRejected    AuditErrorCode = "credential_rejected"
	auditErrUnconfirmed           AuditErrorCode = "account_unconfirmed"
	auditErrChallengeRejected     AuditErrorCode = "challenge_rejected"
	auditErrCodeMismatch          AuditErrorCode = "code_mismatch"
	auditErrCodeExpired           AuditErrorCode = "code_expired"
	auditErrUnrecognizedChallenge AuditErrorCode = "unrecognized_challenge"
	auditErrPasswordReset         AuditErrorCode = "password_reset_required"
	auditErrMFASetup              AuditErrorCode = "mfa_setup_required"
	auditErrDuplicate             AuditErrorCode = "duplicate"
	auditErrRejected              AuditErrorCode = "rejected"
	auditErrUnavailable           AuditErrorCode = "provider_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	attemptID string,
	email string,
	step Step,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AttemptID: attemptID,
		Email:     email,
		Step:      step.String(),
		Final:     auditFinal[eventType],
		IP:        ClientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrCredentialRejected):
		return auditErrCredentialRejected
	case errors.Is(err, ErrUnconfirmedAccount):
		return auditErrUnconfirmed
	case errors.Is(err, ErrChallengeAnswerRejected):
		return auditErrChallengeRejected
	case errors.Is(err, ErrCodeMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrUnrecognizedChallenge):
		return auditErrUnrecognizedChallenge
	case errors.Is(err, ErrPasswordResetRequired):
		return auditErrPasswordReset
	case errors.Is(err, ErrMFASetupRequired):
		return auditErrMFASetup
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrRegistrationRejected),
		errors.Is(err, ErrConfirmationRejected),
		errors.Is(err, ErrResendRejected):
		return auditErrRejected
	case errors.Is(err, ErrTransportFailure):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
