package localidp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/stepAuth"
	"github.com/MrEthical07/stepAuth/cipher"
	"github.com/MrEthical07/stepAuth/jwt"
	"github.com/MrEthical07/stepAuth/password"
)

type captureSender struct {
	mu       sync.Mutex
	codes    map[string][]string
	welcomed []string
	codeErr  error
}

func (s *captureSender) SendCode(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codeErr != nil {
		return s.codeErr
	}
	if s.codes == nil {
		s.codes = make(map[string][]string)
	}
	s.codes[email] = append(s.codes[email], code)
	return nil
}

func (s *captureSender) SendWelcome(_ context.Context, email string) error {
	s.mu.Lock()
	s.welcomed = append(s.welcomed, email)
	s.mu.Unlock()
	return nil
}

func (s *captureSender) lastCode(t *testing.T, email string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.codes[email]
	if len(codes) == 0 {
		t.Fatalf("no code sent to %s", email)
	}
	return codes[len(codes)-1]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Token.PrivateKey = []byte("localidp-test-secret-0123456789")
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func newTestProvider(t *testing.T, mutate ...func(*Config)) (*Provider, *miniredis.Miniredis, *captureSender) {
	t.Helper()

	mr, client := newTestRedis(t)
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	sender := &captureSender{}
	p, err := New(client, cfg, sender, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, mr, sender
}

var testAnswers = map[string]string{
	"What is your pet's name?":    "rex",
	"What city were you born in?": "halifax",
	"What was your first school?": "st. mary's",
}

func testRecord(email string, userType stepAuth.UserType) stepAuth.EnrollmentRecord {
	rec := stepAuth.EnrollmentRecord{
		Credential: stepAuth.Credential{Email: email, Password: "hunter22"},
		UserType:   userType,
		Cipher: stepAuth.CipherEnrollment{
			Ciphertext:        cipher.Encode("HELLO", 3),
			Shift:             3,
			ExpectedPlaintext: "HELLO",
		},
	}
	i := 0
	for q, a := range testAnswers {
		rec.Questions[i] = stepAuth.SecurityQuestionEntry{Question: q, Answer: a}
		i++
	}
	return rec
}

func registerConfirmed(t *testing.T, p *Provider, s *captureSender, email string, userType stepAuth.UserType) {
	t.Helper()
	ctx := context.Background()
	if err := p.RegisterUser(ctx, testRecord(email, userType)); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	if err := p.ConfirmRegistration(ctx, email, s.lastCode(t, email)); err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}
}

func requireRejection(t *testing.T, err error, want stepAuth.RejectionKind) {
	t.Helper()
	var rej *stepAuth.Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected rejection %s, got %v", want, err)
	}
	if rej.Kind != want {
		t.Fatalf("expected rejection %s, got %s", want, rej.Kind)
	}
}

func requireRejected(t *testing.T, out stepAuth.ChallengeOutcome, err error, want stepAuth.RejectionKind) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if out.Kind != stepAuth.OutcomeRejected || out.Rejection == nil {
		t.Fatalf("expected rejected outcome, got %+v", out)
	}
	if out.Rejection.Kind != want {
		t.Fatalf("expected rejection %s, got %s", want, out.Rejection.Kind)
	}
}

func TestProviderFullScenario(t *testing.T) {
	p, _, sender := newTestProvider(t)
	ctx := context.Background()

	if err := p.RegisterUser(ctx, testRecord("a@b.com", stepAuth.UserTypeCustomer)); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}

	out, err := p.Authenticate(ctx, "a@b.com", "hunter22")
	requireRejected(t, out, err, stepAuth.RejectUserNotConfirmed)

	if err := p.ConfirmRegistration(ctx, "a@b.com", sender.lastCode(t, "a@b.com")); err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}
	if len(sender.welcomed) != 1 {
		t.Fatalf("expected one welcome, got %v", sender.welcomed)
	}

	out, err = p.Authenticate(ctx, "a@b.com", "hunter22")
	if err != nil || out.Kind != stepAuth.OutcomeNextChallenge {
		t.Fatalf("expected question challenge, got %+v err=%v", out, err)
	}
	question := out.Descriptor.Question()
	answer, ok := testAnswers[question]
	if !ok {
		t.Fatalf("question %q was not enrolled", question)
	}
	questionHandle := out.Handle

	out, err = p.SubmitChallengeAnswer(ctx, questionHandle, "  "+strings.ToUpper(answer)+" ")
	if err != nil || out.Kind != stepAuth.OutcomeNextChallenge {
		t.Fatalf("expected cipher challenge, got %+v err=%v", out, err)
	}
	if stepAuth.Classify(out.Descriptor) != stepAuth.ChallengeCipher {
		t.Fatalf("expected cipher descriptor, got %v", out.Descriptor)
	}
	shift, ok := out.Descriptor.CipherShift()
	if !ok || shift < 1 || shift > 5 {
		t.Fatalf("shift out of range: %v", out.Descriptor)
	}
	if out.Handle == questionHandle {
		t.Fatal("cipher step must use a fresh handle")
	}

	stale, err := p.SubmitChallengeAnswer(ctx, questionHandle, answer)
	requireRejected(t, stale, err, stepAuth.RejectChallengeFailed)

	plain := cipher.Decode(out.Descriptor.CipherChallenge(), shift)
	done, err := p.SubmitChallengeAnswer(ctx, out.Handle, plain)
	if err != nil || done.Kind != stepAuth.OutcomeComplete {
		t.Fatalf("expected complete, got %+v err=%v", done, err)
	}

	attrs := done.Attributes
	if attrs[jwt.AttrEmail] != "a@b.com" || attrs[jwt.AttrUserType] != "customer" || attrs[jwt.AttrGroups] != "Customers" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
	if attrs[jwt.AttrSubject] == "" {
		t.Fatal("expected subject attribute")
	}
	claims, err := p.tokens.ParseID(attrs[jwt.AttrIDToken])
	if err != nil {
		t.Fatalf("id token does not verify: %v", err)
	}
	if claims.Subject != attrs[jwt.AttrSubject] {
		t.Fatalf("subject mismatch: %q vs %q", claims.Subject, attrs[jwt.AttrSubject])
	}
}

func TestProviderRejectsBadCredentials(t *testing.T) {
	p, _, sender := newTestProvider(t)
	registerConfirmed(t, p, sender, "a@b.com", stepAuth.UserTypeCustomer)
	ctx := context.Background()

	out, err := p.Authenticate(ctx, "a@b.com", "wrong-password")
	requireRejected(t, out, err, stepAuth.RejectInvalidCredentials)

	out, err = p.Authenticate(ctx, "nobody@b.com", "hunter22")
	requireRejected(t, out, err, stepAuth.RejectInvalidCredentials)
	if out.Rejection.Message != msgInvalidCredentials {
		t.Fatalf("unknown user must look like a wrong password: %q", out.Rejection.Message)
	}
}

func TestProviderSignInRateLimit(t *testing.T) {
	p, mr, sender := newTestProvider(t, func(c *Config) {
		c.RateLimit.MaxSignInFailures = 2
		c.RateLimit.SignInCooldown = time.Minute
	})
	registerConfirmed(t, p, sender, "a@b.com", stepAuth.UserTypeCustomer)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		out, err := p.Authenticate(ctx, "a@b.com", "wrong-password")
		requireRejected(t, out, err, stepAuth.RejectInvalidCredentials)
	}

	out, err := p.Authenticate(ctx, "a@b.com", "hunter22")
	requireRejected(t, out, err, stepAuth.RejectRateLimited)

	mr.FastForward(2 * time.Minute)
	out, err = p.Authenticate(ctx, "a@b.com", "hunter22")
	if err != nil || out.Kind != stepAuth.OutcomeNextChallenge {
		t.Fatalf("expected challenge after cooldown, got %+v err=%v", out, err)
	}
}

func TestProviderWrongAnswerKeepsHandleUntilCap(t *testing.T) {
	p, _, sender := newTestProvider(t, func(c *Config) {
		c.Challenge.MaxAttempts = 3
	})
	registerConfirmed(t, p, sender, "a@b.com", stepAuth.UserTypeCustomer)
	ctx := context.Background()

	out, err := p.Authenticate(ctx, "a@b.com", "hunter22")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	handle := out.Handle
	answer := testAnswers[out.Descriptor.Question()]

	for i := 0; i < 2; i++ {
		res, err := p.SubmitChallengeAnswer(ctx, handle, "nope")
		requireRejected(t, res, err, stepAuth.RejectChallengeFailed)
		if res.Rejection.Message != msgWrongAnswer {
			t.Fatalf("attempt %d: unexpected message %q", i, res.Rejection.Message)
		}
	}

	res, err := p.SubmitChallengeAnswer(ctx, handle, "nope")
	requireRejected(t, res, err, stepAuth.RejectChallengeFailed)
	if res.Rejection.Message != msgTooManyAnswers {
		t.Fatalf("expected cap message, got %q", res.Rejection.Message)
	}

	res, err = p.SubmitChallengeAnswer(ctx, handle, answer)
	requireRejected(t, res, err, stepAuth.RejectChallengeFailed)
	if res.Rejection.Message != msgSessionExpired {
		t.Fatalf("session should be gone, got %q", res.Rejection.Message)
	}
}

func TestProviderWrongAnswerThenRightAnswer(t *testing.T) {
	p, _, sender := newTestProvider(t)
	registerConfirmed(t, p, sender, "a@b.com", stepAuth.UserTypeCustomer)
	ctx := context.Background()

	out, _ := p.Authenticate(ctx, "a@b.com", "hunter22")
	res, err := p.SubmitChallengeAnswer(ctx, out.Handle, "nope")
	requireRejected(t, res, err, stepAuth.RejectChallengeFailed)

	res, err = p.SubmitChallengeAnswer(ctx, out.Handle, testAnswers[out.Descriptor.Question()])
	if err != nil || res.Kind != stepAuth.OutcomeNextChallenge {
		t.Fatalf("expected cipher challenge after retry, got %+v err=%v", res, err)
	}
}

func TestProviderCipherAnswerIsExact(t *testing.T) {
	p, _, sender := newTestProvider(t)
	registerConfirmed(t, p, sender, "a@b.com", stepAuth.UserTypeCustomer)
	ctx := context.Background()

	out, _ := p.Authenticate(ctx, "a@b.com", "hunter22")
	out, err := p.SubmitChallengeAnswer(ctx, out.Handle, testAnswers[out.Descriptor.Question()])
	if err != nil {
		t.Fatalf("question step failed: %v", err)
	}
	shift, _ := out.Descriptor.CipherShift()
	plain := cipher.Decode(out.Descriptor.CipherChallenge(), shift)

	res, err := p.SubmitChallengeAnswer(ctx, out.Handle, strings.ToLower(plain))
	requireRejected(t, res, err, stepAuth.RejectChallengeFailed)

	res, err = p.SubmitChallengeAnswer(ctx, out.Handle, plain)
	if err != nil || res.Kind != stepAuth.OutcomeComplete {
		t.Fatalf("expected complete, got %+v err=%v", res, err)
	}
}

func TestProviderMalformedHandle(t *testing.T) {
	p, _, _ := newTestProvider(t)

	res, err := p.SubmitChallengeAnswer(context.Background(), "not-a-handle", "rex")
	requireRejected(t, res, err, stepAuth.RejectChallengeFailed)
}

func TestProviderRegisterRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*stepAuth.EnrollmentRecord)
		want   stepAuth.RejectionKind
	}{
		{
			name: "cipher does not decode",
			mutate: func(r *stepAuth.EnrollmentRecord) {
				r.Cipher.ExpectedPlaintext = "WORLD"
			},
			want: stepAuth.RejectInvalidEnrollment,
		},
		{
			name: "missing password",
			mutate: func(r *stepAuth.EnrollmentRecord) {
				r.Credential.Password = ""
			},
			want: stepAuth.RejectInvalidEnrollment,
		},
		{
			name: "blank answer",
			mutate: func(r *stepAuth.EnrollmentRecord) {
				r.Questions[1].Answer = "  "
			},
			want: stepAuth.RejectInvalidEnrollment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, sender := newTestProvider(t)
			rec := testRecord("a@b.com", stepAuth.UserTypeCustomer)
			tt.mutate(&rec)

			requireRejection(t, p.RegisterUser(context.Background(), rec), tt.want)
			if len(sender.codes) != 0 {
				t.Fatal("no code may be sent for a rejected registration")
			}
		})
	}
}

func TestProviderRegisterDuplicate(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	if err := p.RegisterUser(ctx, testRecord("a@b.com", stepAuth.UserTypeCustomer)); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	requireRejection(t, p.RegisterUser(ctx, testRecord("a@b.com", stepAuth.UserTypeAdmin)), stepAuth.RejectUserExists)
}

func TestProviderConfirmationCodes(t *testing.T) {
	p, mr, sender := newTestProvider(t, func(c *Config) {
		c.Confirmation.MaxAttempts = 2
	})
	ctx := context.Background()

	if err := p.RegisterUser(ctx, testRecord("a@b.com", stepAuth.UserTypeCustomer)); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	code := sender.lastCode(t, "a@b.com")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	requireRejection(t, p.ConfirmRegistration(ctx, "a@b.com", wrong), stepAuth.RejectCodeMismatch)
	requireRejection(t, p.ConfirmRegistration(ctx, "a@b.com", wrong), stepAuth.RejectCodeExpired)
	requireRejection(t, p.ConfirmRegistration(ctx, "a@b.com", code), stepAuth.RejectCodeExpired)

	if err := p.ResendConfirmationCode(ctx, "a@b.com"); err != nil {
		t.Fatalf("ResendConfirmationCode failed: %v", err)
	}
	mr.FastForward(25 * time.Hour)
	requireRejection(t, p.ConfirmRegistration(ctx, "a@b.com", sender.lastCode(t, "a@b.com")), stepAuth.RejectCodeExpired)

	if err := p.ResendConfirmationCode(ctx, "a@b.com"); err != nil {
		t.Fatalf("ResendConfirmationCode failed: %v", err)
	}
	if err := p.ConfirmRegistration(ctx, "a@b.com", sender.lastCode(t, "a@b.com")); err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}

	requireRejection(t, p.ResendConfirmationCode(ctx, "a@b.com"), stepAuth.RejectOther)
	requireRejection(t, p.ResendConfirmationCode(ctx, "nobody@b.com"), stepAuth.RejectOther)
}

func TestProviderResendRateLimit(t *testing.T) {
	p, _, sender := newTestProvider(t, func(c *Config) {
		c.RateLimit.MaxResends = 2
		c.RateLimit.ResendWindow = time.Hour
	})
	ctx := context.Background()

	if err := p.RegisterUser(ctx, testRecord("a@b.com", stepAuth.UserTypeCustomer)); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := p.ResendConfirmationCode(ctx, "a@b.com"); err != nil {
			t.Fatalf("resend %d failed: %v", i, err)
		}
	}
	requireRejection(t, p.ResendConfirmationCode(ctx, "a@b.com"), stepAuth.RejectRateLimited)

	if got := len(sender.codes["a@b.com"]); got != 3 {
		t.Fatalf("expected 3 codes sent, got %d", got)
	}
}

func TestProviderAssignsGroupByUserType(t *testing.T) {
	p, _, sender := newTestProvider(t)
	registerConfirmed(t, p, sender, "boss@b.com", stepAuth.UserTypeAdmin)

	user, err := p.users.Get(context.Background(), "boss@b.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !user.Confirmed || user.Group != "FranchiseOperators" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestProviderUpgradesStaleHash(t *testing.T) {
	_, client := newTestRedis(t)
	sender := &captureSender{}

	old, err := New(client, testConfig(), sender, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	registerConfirmed(t, old, sender, "a@b.com", stepAuth.UserTypeCustomer)

	cfg := testConfig()
	cfg.Password.Time = 2
	current, err := New(client, cfg, sender, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := current.Authenticate(context.Background(), "a@b.com", "hunter22")
	if err != nil || out.Kind != stepAuth.OutcomeNextChallenge {
		t.Fatalf("expected challenge, got %+v err=%v", out, err)
	}
	user, _ := current.users.Get(context.Background(), "a@b.com")
	if !strings.Contains(user.PasswordHash, "t=2") {
		t.Fatalf("hash not upgraded: %s", user.PasswordHash)
	}
}

func TestEngineWithLocalProvider(t *testing.T) {
	p, _, sender := newTestProvider(t)
	engine, err := stepAuth.New().WithProvider(p).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	ctx := context.Background()

	enr, err := engine.NewEnrollment()
	if err != nil {
		t.Fatalf("NewEnrollment failed: %v", err)
	}
	enr.SetCipherAnswer(enr.Puzzle().Plaintext)

	form := stepAuth.EnrollmentForm{
		Email:           "boss@b.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
		UserType:        stepAuth.UserTypeAdmin,
	}
	i := 0
	for q, a := range testAnswers {
		form.Questions[i] = stepAuth.SecurityQuestionEntry{Question: q, Answer: a}
		i++
	}
	if _, err := engine.Register(ctx, enr, form); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	conf, err := engine.StartConfirmation(ctx, "")
	if err != nil {
		t.Fatalf("StartConfirmation failed: %v", err)
	}
	defer conf.Close()
	if conf.Email() != "boss@b.com" {
		t.Fatalf("expected remembered email, got %q", conf.Email())
	}
	conf.Paste(sender.lastCode(t, "boss@b.com"))
	if err := conf.Submit(ctx); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	a, err := engine.SignIn(ctx, stepAuth.Credential{Email: "boss@b.com", Password: "hunter22"})
	if err != nil || a.Step() != stepAuth.StepQuestion {
		t.Fatalf("expected question step, got %v err=%v", a, err)
	}
	a, err = engine.Answer(ctx, a, testAnswers[a.Question()])
	if err != nil || a.Step() != stepAuth.StepCipher {
		t.Fatalf("expected cipher step, got err=%v", err)
	}
	shift, _ := a.CipherShift()
	a, err = engine.Answer(ctx, a, cipher.Decode(a.CipherChallenge(), shift))
	if err != nil {
		t.Fatalf("cipher answer failed: %v", err)
	}
	if a.Step() != stepAuth.StepComplete || a.Destination() != "/admin" || a.Role() != stepAuth.UserTypeAdmin {
		t.Fatalf("unexpected completion: step=%s dest=%s role=%s", a.Step(), a.Destination(), a.Role())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty prefix", func(c *Config) { c.KeyPrefix = "" }},
		{"zero session ttl", func(c *Config) { c.Challenge.SessionTTL = 0 }},
		{"zero attempts", func(c *Config) { c.Challenge.MaxAttempts = 0 }},
		{"no phrases", func(c *Config) { c.Challenge.Phrases = nil }},
		{"shift too large", func(c *Config) { c.Challenge.MaxShift = 26 }},
		{"short code", func(c *Config) { c.Confirmation.CodeDigits = 3 }},
		{"zero code ttl", func(c *Config) { c.Confirmation.CodeTTL = 0 }},
		{"negative budget", func(c *Config) { c.RateLimit.MaxResends = -1 }},
		{"missing cooldown", func(c *Config) { c.RateLimit.SignInCooldown = 0 }},
		{"missing default group", func(c *Config) { c.Groups.Default = "" }},
	}

	base := testConfig()
	if err := base.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewRequiresTokenKey(t *testing.T) {
	_, client := newTestRedis(t)
	if _, err := New(client, DefaultConfig(), nil, nil); err == nil {
		t.Fatal("expected error for missing signing key")
	}
	if _, err := New(nil, testConfig(), nil, nil); err == nil {
		t.Fatal("expected error for nil redis client")
	}
}

func TestRegisterSurvivesCodeDeliveryFailure(t *testing.T) {
	p, _, sender := newTestProvider(t)
	ctx := context.Background()
	sender.codeErr = errors.New("smtp: connection refused")

	if err := p.RegisterUser(ctx, testRecord("a@b.com", stepAuth.UserTypeCustomer)); err != nil {
		t.Fatalf("expected registration to succeed, got %v", err)
	}
	requireRejection(t, p.RegisterUser(ctx, testRecord("a@b.com", stepAuth.UserTypeCustomer)), stepAuth.RejectUserExists)

	sender.mu.Lock()
	sender.codeErr = nil
	sender.mu.Unlock()
	if err := p.ResendConfirmationCode(ctx, "a@b.com"); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if err := p.ConfirmRegistration(ctx, "a@b.com", sender.lastCode(t, "a@b.com")); err != nil {
		t.Fatalf("confirm after resend failed: %v", err)
	}
}
