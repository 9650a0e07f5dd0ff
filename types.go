package stepAuth

import (
	"strconv"
	"time"

	"github.com/MrEthical07/stepAuth/internal/flows"
)

// UserType is the role chosen at enrollment.
type UserType string

const (
	UserTypeCustomer UserType = "customer"
	UserTypeAdmin    UserType = "admin"
)

// Step is the position of a sign-in attempt in the challenge state machine.
type Step int

const (
	StepCredentials Step = Step(flows.StepCredentials)
	StepQuestion    Step = Step(flows.StepQuestion)
	StepCipher      Step = Step(flows.StepCipher)
	StepComplete    Step = Step(flows.StepComplete)
	StepFailed      Step = Step(flows.StepFailed)
)

func (s Step) String() string {
	switch s {
	case StepCredentials:
		return "credentials"
	case StepQuestion:
		return "question"
	case StepCipher:
		return "cipher"
	case StepComplete:
		return "complete"
	case StepFailed:
		return "failed"
	default:
		return "step(" + strconv.Itoa(int(s)) + ")"
	}
}

// Terminal reports whether no further answer can be submitted.
func (s Step) Terminal() bool {
	return s == StepComplete || s == StepFailed
}

// ChallengeKind is the classification of a challenge descriptor.
type ChallengeKind int

const (
	ChallengeUnrecognized ChallengeKind = ChallengeKind(flows.KindUnrecognized)
	ChallengeQuestion     ChallengeKind = ChallengeKind(flows.KindQuestion)
	ChallengeCipher       ChallengeKind = ChallengeKind(flows.KindCipher)
)

func (k ChallengeKind) String() string {
	switch k {
	case ChallengeQuestion:
		return "question"
	case ChallengeCipher:
		return "cipher"
	default:
		return "unrecognized"
	}
}

// Descriptor field names.
const (
	DescriptorQuestion        = flows.FieldQuestion
	DescriptorCipherChallenge = flows.FieldCipherChallenge
	DescriptorCipherShift     = flows.FieldCipherShift
)

// ChallengeDescriptor is the opaque bag of public challenge parameters the
// provider returns with a session handle.
type ChallengeDescriptor map[string]string

// Classify returns the challenge step the descriptor represents. A question
// field wins over cipher fields.
func Classify(d ChallengeDescriptor) ChallengeKind {
	return ChallengeKind(flows.Classify(d))
}

func (d ChallengeDescriptor) Question() string { return d[DescriptorQuestion] }

func (d ChallengeDescriptor) CipherChallenge() string { return d[DescriptorCipherChallenge] }

// CipherShift parses the shift field. ok is false when it is absent or not an
// integer.
func (d ChallengeDescriptor) CipherShift() (shift int, ok bool) {
	raw, present := d[DescriptorCipherShift]
	if !present {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Credential is transient; the engine never persists the password.
type Credential struct {
	Email    string
	Password string
}

type SecurityQuestionEntry struct {
	Question string
	Answer   string
}

// DefaultSecurityQuestions is the catalog enrollment questions are drawn from.
var DefaultSecurityQuestions = []string{
	"What is your favorite color?",
	"What is your pet's name?",
	"What city were you born in?",
	"What is your mother's maiden name?",
	"What was your first school?",
	"What was the make of your first car?",
	"What street did you grow up on?",
	"What was your childhood nickname?",
}

// CipherEnrollment is the cipher part of an enrollment record.
type CipherEnrollment struct {
	Ciphertext        string
	Shift             int
	ExpectedPlaintext string
}

// EnrollmentForm is the user-supplied part of a registration. The cipher
// answer is held by the Enrollment it is submitted with.
type EnrollmentForm struct {
	Email           string
	Password        string
	ConfirmPassword string
	UserType        UserType
	Questions       [3]SecurityQuestionEntry
}

// EnrollmentRecord is produced once every enrollment rule passed. Answers are
// normalized. Credential carries what the provider needs to create the
// account.
type EnrollmentRecord struct {
	Credential Credential
	UserType   UserType
	Questions  [3]SecurityQuestionEntry
	Cipher     CipherEnrollment
}

// ConfirmationRedirect asks the presentation layer to open the confirmation
// flow for Email once After has elapsed.
type ConfirmationRedirect struct {
	Email string
	After time.Duration
}
