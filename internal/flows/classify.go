package flows

// Descriptor field names understood by the classifier.
const (
	FieldQuestion        = "question"
	FieldCipherChallenge = "cipherChallenge"
	FieldCipherShift     = "cipherShift"
)

// ChallengeKind is the tagged result of classifying a challenge descriptor.
type ChallengeKind int

const (
	KindUnrecognized ChallengeKind = iota
	KindQuestion
	KindCipher
)

// Classify derives the challenge step from the descriptor's field set. A field
// counts as present when its value is non-empty. Question wins when both
// question and cipher fields are carried.
func Classify(fields map[string]string) ChallengeKind {
	if fields[FieldQuestion] != "" {
		return KindQuestion
	}
	if fields[FieldCipherChallenge] != "" {
		return KindCipher
	}
	return KindUnrecognized
}
