package stepAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/stepAuth/cipher"
	"github.com/MrEthical07/stepAuth/internal/flows"
	"github.com/google/uuid"
)

var errNilEnrollment = errors.New("stepAuth: nil enrollment")

// Enrollment holds the cipher puzzle and its answer while a registration form
// is being filled. It has a single owner; regenerating the puzzle discards the
// answer typed for the previous one.
type Enrollment struct {
	engine *Engine
	id     string

	mu     sync.Mutex
	puzzle cipher.Puzzle
	answer string
	busy   bool
	spent  bool
}

// NewEnrollment describes the newenrollment operation and its observable behavior.
//
// NewEnrollment starts an enrollment with a freshly generated puzzle.
func (e *Engine) NewEnrollment() (*Enrollment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	p, err := e.newPuzzle()
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		engine: e,
		id:     uuid.NewString(),
		puzzle: p,
	}, nil
}

// Puzzle returns the current puzzle.
func (enr *Enrollment) Puzzle() cipher.Puzzle {
	enr.mu.Lock()
	defer enr.mu.Unlock()
	return enr.puzzle
}

// Regenerate replaces the puzzle and clears the cipher answer.
func (enr *Enrollment) Regenerate() error {
	enr.mu.Lock()
	defer enr.mu.Unlock()

	if enr.spent {
		return ErrEnrollmentSpent
	}
	if enr.busy {
		return ErrActionInFlight
	}

	p, err := enr.engine.newPuzzle()
	if err != nil {
		return err
	}
	enr.puzzle = p
	enr.answer = ""
	return nil
}

func (enr *Enrollment) SetCipherAnswer(answer string) {
	enr.mu.Lock()
	enr.answer = answer
	enr.mu.Unlock()
}

func (enr *Enrollment) CipherAnswer() string {
	enr.mu.Lock()
	defer enr.mu.Unlock()
	return enr.answer
}

// Busy reports whether a registration call is pending.
func (enr *Enrollment) Busy() bool {
	enr.mu.Lock()
	defer enr.mu.Unlock()
	return enr.busy
}

// BuildEnrollment describes the buildenrollment operation and its observable behavior.
//
// BuildEnrollment runs the enrollment rules in order and returns the record
// on success, or a *ValidationError naming the first failed rule. It has no
// side effects.
func (e *Engine) BuildEnrollment(enr *Enrollment, form EnrollmentForm) (EnrollmentRecord, error) {
	if err := e.ready(); err != nil {
		return EnrollmentRecord{}, err
	}
	if enr == nil {
		return EnrollmentRecord{}, errNilEnrollment
	}

	enr.mu.Lock()
	puzzle, answer := enr.puzzle, enr.answer
	enr.mu.Unlock()

	return e.buildRecord(puzzle, answer, form)
}

func (e *Engine) buildRecord(puzzle cipher.Puzzle, cipherAnswer string, form EnrollmentForm) (EnrollmentRecord, error) {
	in := flows.EnrollmentInput{
		Email:           form.Email,
		Password:        form.Password,
		ConfirmPassword: form.ConfirmPassword,
		UserType:        string(form.UserType),
		CipherAnswer:    cipherAnswer,
		Puzzle:          puzzle,
	}
	for i, q := range form.Questions {
		in.Questions[i] = q.Question
		in.Answers[i] = q.Answer
	}

	res := flows.ValidateEnrollment(e.deps.Enrollment, in)
	if res.Violation != flows.EnrollmentOK {
		return EnrollmentRecord{}, e.enrollmentViolation(res.Violation)
	}

	userType := UserType(res.UserType)
	if userType == "" {
		userType = UserTypeCustomer
	}

	record := EnrollmentRecord{
		Credential: Credential{Email: res.Email, Password: form.Password},
		UserType:   userType,
		Cipher: CipherEnrollment{
			Ciphertext:        puzzle.Ciphertext,
			Shift:             puzzle.Shift,
			ExpectedPlaintext: puzzle.Plaintext,
		},
	}
	for i := range record.Questions {
		record.Questions[i] = SecurityQuestionEntry{Question: res.Questions[i], Answer: res.Answers[i]}
	}
	return record, nil
}

func (e *Engine) enrollmentViolation(v flows.EnrollmentViolation) *ValidationError {
	switch v {
	case flows.EnrollmentMissingField:
		return newValidationError(ReasonMissingField, "Please fill in all fields.")
	case flows.EnrollmentEmailShape:
		return newValidationError(ReasonEmailShape, "Please enter a valid email address.")
	case flows.EnrollmentPasswordTooShort:
		return newValidationError(ReasonPasswordTooShort,
			"Password must be at least "+strconv.Itoa(e.config.Enrollment.MinPasswordLength)+" characters.")
	case flows.EnrollmentPasswordMismatch:
		return newValidationError(ReasonPasswordMismatch, "Passwords do not match.")
	case flows.EnrollmentDuplicateQuestions:
		return newValidationError(ReasonDuplicateQuestions, "Please choose three different security questions.")
	case flows.EnrollmentUnknownQuestion:
		return newValidationError(ReasonUnknownQuestion, "Please choose security questions from the list.")
	case flows.EnrollmentUnknownUserType:
		return newValidationError(ReasonUnknownUserType, "Please choose a valid user type.")
	default:
		return newValidationError(ReasonCipherMismatch, "The cipher answer does not decode the puzzle.")
	}
}

// Register describes the register operation and its observable behavior.
//
// Register validates the form against enr and hands the record to the
// provider. A validation failure makes no provider call. After a successful
// registration enr is spent and the email is cached for confirmation.
func (e *Engine) Register(ctx context.Context, enr *Enrollment, form EnrollmentForm) (EnrollmentRecord, error) {
	if err := e.ready(); err != nil {
		return EnrollmentRecord{}, err
	}
	if enr == nil {
		return EnrollmentRecord{}, errNilEnrollment
	}

	enr.mu.Lock()
	if enr.spent {
		enr.mu.Unlock()
		return EnrollmentRecord{}, ErrEnrollmentSpent
	}
	if enr.busy {
		enr.mu.Unlock()
		return EnrollmentRecord{}, ErrActionInFlight
	}
	record, err := e.buildRecord(enr.puzzle, enr.answer, form)
	if err != nil {
		enr.mu.Unlock()
		e.metricInc(MetricValidationRejected)
		e.metricInc(MetricEnrollmentRejected)
		e.emitAudit(ctx, auditEventEnrollmentRejected, false, enr.id, "", StepCredentials, err, nil)
		return EnrollmentRecord{}, err
	}
	enr.busy = true
	enr.mu.Unlock()

	start := time.Now()
	callErr := e.provider.RegisterUser(ctx, record)
	e.observe(start)

	enr.mu.Lock()
	defer enr.mu.Unlock()
	enr.busy = false

	if callErr != nil {
		err = e.registrationError(callErr)
		if errors.Is(err, ErrTransportFailure) {
			e.metricInc(MetricTransportFailure)
		} else {
			e.metricInc(MetricEnrollmentRejected)
		}
		e.emitAudit(ctx, auditEventEnrollmentRejected, false, enr.id, record.Credential.Email, StepCredentials, err, nil)
		return EnrollmentRecord{}, err
	}

	enr.spent = true
	e.rememberEmail(ctx, record.Credential.Email)
	e.metricInc(MetricEnrollmentRegistered)
	e.emitAudit(ctx, auditEventEnrollmentRegistered, true, enr.id, record.Credential.Email, StepCredentials, nil, func() map[string]string {
		return map[string]string{"user_type": string(record.UserType)}
	})
	return record, nil
}

func (e *Engine) registrationError(err error) error {
	var rej *Rejection
	if !errors.As(err, &rej) {
		return &ProviderError{Op: "register_user", Err: err}
	}
	if rej.Kind == RejectUserExists {
		return fmt.Errorf("%w: %w", ErrAccountExists, rej)
	}
	return fmt.Errorf("%w: %w", ErrRegistrationRejected, rej)
}
