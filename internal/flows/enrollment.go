package flows

import (
	"strings"

	"github.com/MrEthical07/stepAuth/cipher"
	"github.com/MrEthical07/stepAuth/internal/rules"
)

// EnrollmentViolation classifies enrollment validation failures for
// root-level mapping.
type EnrollmentViolation int

const (
	EnrollmentOK EnrollmentViolation = iota
	EnrollmentMissingField
	EnrollmentEmailShape
	EnrollmentPasswordTooShort
	EnrollmentPasswordMismatch
	EnrollmentDuplicateQuestions
	EnrollmentUnknownQuestion
	EnrollmentUnknownUserType
	EnrollmentCipherMismatch
)

type EnrollmentDeps struct {
	MinPasswordLength int
	Questions         []string
	UserTypes         []string
}

type EnrollmentInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	UserType        string
	Questions       [3]string
	Answers         [3]string
	CipherAnswer    string
	Puzzle          cipher.Puzzle
}

// EnrollmentResult carries the normalized values once every rule passed.
// Questions and UserType are the catalog spellings of what was entered.
type EnrollmentResult struct {
	Violation EnrollmentViolation
	Email     string
	UserType  string
	Questions [3]string
	Answers   [3]string
}

// ValidateEnrollment runs the enrollment rules in their fixed order and stops
// at the first failure.
func ValidateEnrollment(deps EnrollmentDeps, in EnrollmentInput) EnrollmentResult {
	fail := func(v EnrollmentViolation) EnrollmentResult {
		return EnrollmentResult{Violation: v}
	}

	required := []string{in.Email, in.Password, in.ConfirmPassword, in.CipherAnswer}
	required = append(required, in.Questions[:]...)
	required = append(required, in.Answers[:]...)
	for _, v := range required {
		if rules.Blank(v) {
			return fail(EnrollmentMissingField)
		}
	}

	email := rules.NormalizeEmail(in.Email)
	if !rules.ValidEmail(email) {
		return fail(EnrollmentEmailShape)
	}

	if !rules.PasswordLongEnough(in.Password, deps.MinPasswordLength) {
		return fail(EnrollmentPasswordTooShort)
	}

	if in.Password != in.ConfirmPassword {
		return fail(EnrollmentPasswordMismatch)
	}

	var questions [3]string
	known := true
	for i, q := range in.Questions {
		entry, ok := lookup(deps.Questions, q)
		if !ok {
			entry, known = strings.TrimSpace(q), false
		}
		questions[i] = entry
	}
	if !rules.DistinctQuestions(questions[:]...) {
		return fail(EnrollmentDuplicateQuestions)
	}
	if !known {
		return fail(EnrollmentUnknownQuestion)
	}

	userType := ""
	if in.UserType != "" {
		var ok bool
		if userType, ok = lookup(deps.UserTypes, in.UserType); !ok {
			return fail(EnrollmentUnknownUserType)
		}
	}

	if !in.Puzzle.Valid() || !in.Puzzle.Solves(in.CipherAnswer) {
		return fail(EnrollmentCipherMismatch)
	}

	res := EnrollmentResult{
		Violation: EnrollmentOK,
		Email:     email,
		UserType:  userType,
		Questions: questions,
	}
	for i, a := range in.Answers {
		res.Answers[i] = rules.NormalizeAnswer(a)
	}
	return res
}

// lookup returns the catalog entry matching v case-insensitively.
func lookup(list []string, v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return item, true
		}
	}
	return "", false
}
