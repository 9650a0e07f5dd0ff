package localidp

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/stepAuth"
	"github.com/MrEthical07/stepAuth/cipher"
	"github.com/MrEthical07/stepAuth/internal"
	"github.com/MrEthical07/stepAuth/internal/rate"
	"github.com/MrEthical07/stepAuth/internal/rules"
	"github.com/MrEthical07/stepAuth/internal/stores"
	"github.com/MrEthical07/stepAuth/jwt"
	"github.com/MrEthical07/stepAuth/password"
)

// Messages returned with rejections. They follow the wording users of the
// hosted pool were used to.
const (
	msgInvalidCredentials = "Incorrect username or password."
	msgUserNotConfirmed   = "User is not confirmed."
	msgUserExists         = "An account with the given email already exists."
	msgInvalidCipher      = "Invalid Caesar cipher response."
	msgInvalidEnrollment  = "Enrollment is incomplete."
	msgWrongAnswer        = "Incorrect answer."
	msgTooManyAnswers     = "Too many incorrect answers. Please sign in again."
	msgSessionExpired     = "Invalid session for the user, session is expired."
	msgCodeMismatch       = "Invalid verification code provided, please try again."
	msgCodeExpired        = "Invalid code provided, please request a code again."
	msgRateLimited        = "Attempt limit exceeded, please try after some time."
	msgUserNotFound       = "Username/client id combination not found."
	msgAlreadyConfirmed   = "User is already confirmed."
)

var _ stepAuth.IdentityProvider = (*Provider)(nil)

// Provider is a Redis-backed identity provider that runs the server half of
// the question-then-cipher sign-in.
type Provider struct {
	config    Config
	users     *stores.UserStore
	sessions  *stores.ChallengeSessionStore
	codes     *stores.ConfirmationCodeStore
	limiter   *rate.Limiter
	hasher    *password.Argon2
	tokens    *jwt.Manager
	phrases   *cipher.Generator
	sender    CodeSender
	logger    *slog.Logger
	dummyHash string
}

// New describes the new operation and its observable behavior.
//
// New validates cfg and wires the stores onto client. A nil sender logs codes
// through logger; a nil logger uses slog.Default().
func New(client redis.UniversalClient, cfg Config, sender CodeSender, logger *slog.Logger) (*Provider, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}

	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(cfg.Token)
	if err != nil {
		return nil, err
	}
	phrases, err := cipher.NewGenerator(cfg.Challenge.Phrases, cfg.Challenge.MaxShift, nil)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash("stepauth-unknown-user")
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   cfg,
		users:    stores.NewUserStore(client, cfg.KeyPrefix+":u"),
		sessions: stores.NewChallengeSessionStore(client, cfg.KeyPrefix+":cs"),
		codes:    stores.NewConfirmationCodeStore(client, cfg.KeyPrefix+":cc"),
		limiter: rate.New(client, rate.Config{
			EnableIPThrottle:       cfg.RateLimit.EnableIPThrottle,
			MaxSignInAttempts:      cfg.RateLimit.MaxSignInFailures,
			SignInCooldownDuration: cfg.RateLimit.SignInCooldown,
			MaxResends:             cfg.RateLimit.MaxResends,
			ResendWindow:           cfg.RateLimit.ResendWindow,
		}),
		hasher:    hasher,
		tokens:    tokens,
		phrases:   phrases,
		sender:    sender,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

/*
====================================
SIGN-IN
====================================
*/

// Authenticate checks the credentials and opens the question step.
func (p *Provider) Authenticate(ctx context.Context, email, pass string) (stepAuth.ChallengeOutcome, error) {
	email = rules.NormalizeEmail(email)
	ip := stepAuth.ClientIPFromContext(ctx)

	if err := p.limiter.CheckSignIn(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return stepAuth.Rejected(stepAuth.RejectRateLimited, msgRateLimited), nil
		}
		return stepAuth.ChallengeOutcome{}, err
	}

	user, err := p.users.Get(ctx, email)
	if err != nil {
		if !errors.Is(err, stores.ErrUserNotFound) {
			return stepAuth.ChallengeOutcome{}, err
		}
		// Spend the same hashing cost as a real account.
		_, _ = p.hasher.Verify(pass, p.dummyHash)
		return p.credentialFailure(ctx, email, ip)
	}

	ok, err := p.hasher.Verify(pass, user.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrSecretTooLong) {
		return stepAuth.ChallengeOutcome{}, err
	}
	if !ok {
		return p.credentialFailure(ctx, email, ip)
	}
	if !user.Confirmed {
		return stepAuth.Rejected(stepAuth.RejectUserNotConfirmed, msgUserNotConfirmed), nil
	}
	p.upgradeHash(ctx, user, pass)

	i, err := internal.RandomIndex(len(user.Answers))
	if err != nil {
		return stepAuth.ChallengeOutcome{}, err
	}
	picked := user.Answers[i]

	handle, err := p.openSession(ctx, &stores.ChallengeSession{
		Email:    email,
		Step:     stores.ChallengeStepQuestion,
		Question: picked.Question,
		Expected: picked.AnswerHash,
	})
	if err != nil {
		return stepAuth.ChallengeOutcome{}, err
	}

	return stepAuth.NextChallenge(stepAuth.ChallengeDescriptor{
		stepAuth.DescriptorQuestion: picked.Question,
	}, handle), nil
}

// SubmitChallengeAnswer judges answer against the session behind handle. A
// wrong answer leaves the handle usable until the attempt cap deletes it; a
// right one always retires it.
func (p *Provider) SubmitChallengeAnswer(ctx context.Context, handle, answer string) (stepAuth.ChallengeOutcome, error) {
	if _, err := internal.ParseHandle(handle); err != nil {
		return stepAuth.Rejected(stepAuth.RejectChallengeFailed, msgSessionExpired), nil
	}

	sess, err := p.sessions.Get(ctx, handle)
	if err != nil {
		if isSessionGone(err) {
			return stepAuth.Rejected(stepAuth.RejectChallengeFailed, msgSessionExpired), nil
		}
		return stepAuth.ChallengeOutcome{}, err
	}

	correct, err := p.judge(sess, answer)
	if err != nil {
		return stepAuth.ChallengeOutcome{}, err
	}
	if !correct {
		return p.answerFailure(ctx, handle, sess.Email)
	}

	live, err := p.sessions.Delete(ctx, handle)
	if err != nil {
		return stepAuth.ChallengeOutcome{}, err
	}
	if !live {
		return stepAuth.Rejected(stepAuth.RejectChallengeFailed, msgSessionExpired), nil
	}

	switch sess.Step {
	case stores.ChallengeStepQuestion:
		return p.openCipherStep(ctx, sess.Email)
	case stores.ChallengeStepCipher:
		return p.complete(ctx, sess.Email)
	default:
		return stepAuth.Rejected(stepAuth.RejectChallengeFailed, msgSessionExpired), nil
	}
}

func (p *Provider) judge(sess *stores.ChallengeSession, answer string) (bool, error) {
	switch sess.Step {
	case stores.ChallengeStepQuestion:
		ok, err := p.hasher.Verify(rules.NormalizeAnswer(answer), sess.Expected)
		if errors.Is(err, password.ErrSecretTooLong) {
			return false, nil
		}
		return ok, err
	case stores.ChallengeStepCipher:
		return subtle.ConstantTimeCompare([]byte(answer), []byte(sess.Expected)) == 1, nil
	default:
		return false, nil
	}
}

func (p *Provider) answerFailure(ctx context.Context, handle, email string) (stepAuth.ChallengeOutcome, error) {
	exceeded, err := p.sessions.RecordFailure(ctx, handle, p.config.Challenge.MaxAttempts)
	if err != nil {
		if isSessionGone(err) {
			return stepAuth.Rejected(stepAuth.RejectChallengeFailed, msgSessionExpired), nil
		}
		return stepAuth.ChallengeOutcome{}, err
	}
	if err := p.limiter.IncrementSignIn(ctx, email, stepAuth.ClientIPFromContext(ctx)); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		p.logger.WarnContext(ctx, "localidp: sign-in counter update failed", "error", err)
	}
	if exceeded {
		return stepAuth.Rejected(stepAuth.RejectChallengeFailed, msgTooManyAnswers), nil
	}
	return stepAuth.Rejected(stepAuth.RejectChallengeFailed, msgWrongAnswer), nil
}

func (p *Provider) openCipherStep(ctx context.Context, email string) (stepAuth.ChallengeOutcome, error) {
	puzzle, err := p.phrases.NewPuzzle()
	if err != nil {
		return stepAuth.ChallengeOutcome{}, err
	}

	handle, err := p.openSession(ctx, &stores.ChallengeSession{
		Email:    email,
		Step:     stores.ChallengeStepCipher,
		Expected: puzzle.Plaintext,
		Shift:    uint8(puzzle.Shift),
	})
	if err != nil {
		return stepAuth.ChallengeOutcome{}, err
	}

	return stepAuth.NextChallenge(stepAuth.ChallengeDescriptor{
		stepAuth.DescriptorCipherChallenge: puzzle.Ciphertext,
		stepAuth.DescriptorCipherShift:     strconv.Itoa(puzzle.Shift),
	}, handle), nil
}

func (p *Provider) complete(ctx context.Context, email string) (stepAuth.ChallengeOutcome, error) {
	user, err := p.users.Get(ctx, email)
	if err != nil {
		return stepAuth.ChallengeOutcome{}, err
	}

	var groups []string
	if user.Group != "" {
		groups = []string{user.Group}
	}
	token, err := p.tokens.IssueID(user.Subject, user.Email, user.UserType, groups)
	if err != nil {
		return stepAuth.ChallengeOutcome{}, err
	}
	claims, err := p.tokens.ParseID(token)
	if err != nil {
		return stepAuth.ChallengeOutcome{}, err
	}

	if err := p.limiter.ResetSignIn(ctx, email, stepAuth.ClientIPFromContext(ctx)); err != nil {
		p.logger.WarnContext(ctx, "localidp: sign-in counter reset failed", "error", err)
	}

	attrs := claims.Attributes()
	attrs[jwt.AttrIDToken] = token
	return stepAuth.Complete(attrs), nil
}

func (p *Provider) credentialFailure(ctx context.Context, email, ip string) (stepAuth.ChallengeOutcome, error) {
	if err := p.limiter.IncrementSignIn(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		return stepAuth.ChallengeOutcome{}, err
	}
	return stepAuth.Rejected(stepAuth.RejectInvalidCredentials, msgInvalidCredentials), nil
}

func (p *Provider) upgradeHash(ctx context.Context, user *stores.UserRecord, pass string) {
	if !p.config.UpgradeHashes {
		return
	}
	stale, err := p.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := p.hasher.Hash(pass)
	if err != nil {
		return
	}
	if err := p.users.UpdatePasswordHash(ctx, user.Email, hash); err != nil {
		p.logger.WarnContext(ctx, "localidp: password rehash failed", "error", err)
	}
}

func (p *Provider) openSession(ctx context.Context, sess *stores.ChallengeSession) (string, error) {
	h, err := internal.NewHandle()
	if err != nil {
		return "", err
	}
	ttl := p.config.Challenge.SessionTTL
	sess.ExpiresAt = time.Now().Add(ttl).Unix()

	handle := h.String()
	if err := p.sessions.Save(ctx, handle, sess, ttl); err != nil {
		return "", err
	}
	return handle, nil
}

func isSessionGone(err error) bool {
	return errors.Is(err, stores.ErrChallengeSessionNotFound) || errors.Is(err, stores.ErrChallengeSessionExpired)
}

/*
====================================
REGISTRATION
====================================
*/

// RegisterUser stores an unconfirmed account and sends its confirmation code.
// The cipher self-check is repeated here so a client cannot skip it.
func (p *Provider) RegisterUser(ctx context.Context, record stepAuth.EnrollmentRecord) error {
	email := rules.NormalizeEmail(record.Credential.Email)
	if email == "" || record.Credential.Password == "" {
		return stepAuth.Reject(stepAuth.RejectInvalidEnrollment, msgInvalidEnrollment)
	}

	c := record.Cipher
	expected := strings.ToUpper(c.ExpectedPlaintext)
	if c.Ciphertext == "" || expected == "" || cipher.Decode(strings.ToUpper(c.Ciphertext), c.Shift) != expected {
		return stepAuth.Reject(stepAuth.RejectInvalidEnrollment, msgInvalidCipher)
	}

	passHash, err := p.hasher.Hash(record.Credential.Password)
	if err != nil {
		if errors.Is(err, password.ErrSecretTooLong) {
			return stepAuth.Reject(stepAuth.RejectInvalidEnrollment, msgInvalidEnrollment)
		}
		return err
	}

	user := &stores.UserRecord{
		Subject:          uuid.NewString(),
		Email:            email,
		UserType:         string(record.UserType),
		PasswordHash:     passHash,
		CipherCiphertext: c.Ciphertext,
		CipherPlaintext:  expected,
		CipherShift:      uint8(c.Shift),
	}
	for i, q := range record.Questions {
		answer := rules.NormalizeAnswer(q.Answer)
		if q.Question == "" || answer == "" {
			return stepAuth.Reject(stepAuth.RejectInvalidEnrollment, msgInvalidEnrollment)
		}
		hash, err := p.hasher.Hash(answer)
		if err != nil {
			if errors.Is(err, password.ErrSecretTooLong) {
				return stepAuth.Reject(stepAuth.RejectInvalidEnrollment, msgInvalidEnrollment)
			}
			return err
		}
		user.Answers[i] = stores.SecurityAnswer{Question: q.Question, AnswerHash: hash}
	}

	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, stores.ErrUserExists) {
			return stepAuth.Reject(stepAuth.RejectUserExists, msgUserExists)
		}
		return err
	}

	code, err := p.saveCode(ctx, email)
	if err != nil {
		return err
	}
	// The account exists from here on. A failed delivery is recovered
	// through ResendConfirmationCode, not by registering again.
	if err := p.sender.SendCode(ctx, email, code); err != nil {
		p.logger.WarnContext(ctx, "localidp: confirmation code delivery failed", "error", err)
	}
	return nil
}

// ConfirmRegistration consumes the pending code and assigns the user's
// group.
func (p *Provider) ConfirmRegistration(ctx context.Context, email, code string) error {
	email = rules.NormalizeEmail(email)

	_, err := p.codes.Consume(ctx, email, internal.HashCode(email, code), p.config.Confirmation.MaxAttempts)
	switch {
	case err == nil:
	case errors.Is(err, stores.ErrConfirmationMismatch):
		return stepAuth.Reject(stepAuth.RejectCodeMismatch, msgCodeMismatch)
	case errors.Is(err, stores.ErrConfirmationNotFound),
		errors.Is(err, stores.ErrConfirmationExpired),
		errors.Is(err, stores.ErrConfirmationAttemptsExceeded):
		return stepAuth.Reject(stepAuth.RejectCodeExpired, msgCodeExpired)
	default:
		return err
	}

	user, err := p.users.Get(ctx, email)
	if err != nil {
		if errors.Is(err, stores.ErrUserNotFound) {
			return stepAuth.Reject(stepAuth.RejectOther, msgUserNotFound)
		}
		return err
	}
	if _, err := p.users.MarkConfirmed(ctx, email, p.config.groupFor(user.UserType)); err != nil {
		return err
	}

	if err := p.sender.SendWelcome(ctx, email); err != nil {
		p.logger.WarnContext(ctx, "localidp: welcome notification failed", "email", email, "error", err)
	}
	return nil
}

// ResendConfirmationCode replaces the pending code of an unconfirmed user.
func (p *Provider) ResendConfirmationCode(ctx context.Context, email string) error {
	email = rules.NormalizeEmail(email)

	user, err := p.users.Get(ctx, email)
	if err != nil {
		if errors.Is(err, stores.ErrUserNotFound) {
			return stepAuth.Reject(stepAuth.RejectOther, msgUserNotFound)
		}
		return err
	}
	if user.Confirmed {
		return stepAuth.Reject(stepAuth.RejectOther, msgAlreadyConfirmed)
	}

	if err := p.limiter.CheckResend(ctx, email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return stepAuth.Reject(stepAuth.RejectRateLimited, msgRateLimited)
		}
		return err
	}

	return p.issueCode(ctx, email)
}

func (p *Provider) issueCode(ctx context.Context, email string) error {
	code, err := p.saveCode(ctx, email)
	if err != nil {
		return err
	}
	return p.sender.SendCode(ctx, email, code)
}

// saveCode stores a fresh code for email, replacing any pending one.
func (p *Provider) saveCode(ctx context.Context, email string) (string, error) {
	code, err := internal.NewOTP(p.config.Confirmation.CodeDigits)
	if err != nil {
		return "", err
	}

	ttl := p.config.Confirmation.CodeTTL
	if err := p.codes.Save(ctx, &stores.ConfirmationRecord{
		Email:     email,
		CodeHash:  internal.HashCode(email, code),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}, ttl); err != nil {
		return "", err
	}
	return code, nil
}
