// Command stepauth is an interactive terminal harness for the stepAuth engine
// running against the Redis-backed reference provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/stepAuth"
	"github.com/MrEthical07/stepAuth/localidp"
	"github.com/MrEthical07/stepAuth/metrics/export/prometheus"
)

const usage = `commands:
  signup   register a new account
  confirm  enter the emailed confirmation code
  signin   sign in with password, security question and cipher
  metrics  print engine counters in Prometheus text format
  help     show this list
  quit     exit`

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, _ := cfg.level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client, cleanup, err := connectRedis(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	var sender localidp.CodeSender = localidp.LogSender{Logger: slog.New(slog.NewTextHandler(os.Stdout, nil))}
	if cfg.SMTPHost != "" {
		sender = localidp.NewSMTPSender(localidp.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	idpCfg := localidp.DefaultConfig()
	idpCfg.Token.PrivateKey = []byte(cfg.JWTSecret)
	provider, err := localidp.New(client, idpCfg, sender, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create provider: %v\n", err)
		os.Exit(1)
	}

	engineCfg := stepAuth.DefaultConfig()
	engineCfg.Audit.Enabled = cfg.AuditLog
	builder := stepAuth.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithProvider(provider).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true)
	if cfg.AuditLog {
		builder = builder.WithAuditSink(stepAuth.NewJSONWriterSink(os.Stderr))
	}
	engine, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := &harness{
		engine:   engine,
		exporter: prometheus.NewExporter(engine),
		prompt:   newPrompter(),
		out:      os.Stdout,
	}
	defer h.prompt.Close()

	ctx := context.Background()
	if len(os.Args) > 1 {
		if err := h.run(ctx, os.Args[1]); err != nil && !errors.Is(err, errAborted) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintln(h.out, usage)
	for {
		cmd, err := h.prompt.ask("stepauth", "")
		if err != nil {
			fmt.Fprintln(h.out)
			return
		}
		if cmd == "quit" || cmd == "exit" {
			return
		}
		if err := h.run(ctx, cmd); err != nil && !errors.Is(err, errAborted) {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func connectRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

type harness struct {
	engine   *stepAuth.Engine
	exporter *prometheus.Exporter
	prompt   *prompter
	out      io.Writer
}

func (h *harness) run(ctx context.Context, cmd string) error {
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "":
		return nil
	case "signup":
		return h.signUp(ctx)
	case "confirm":
		return h.confirm(ctx, "")
	case "signin":
		return h.signIn(ctx)
	case "metrics":
		_, err := h.exporter.WriteTo(h.out)
		return err
	case "help":
		fmt.Fprintln(h.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (h *harness) signUp(ctx context.Context) error {
	enr, err := h.engine.NewEnrollment()
	if err != nil {
		return err
	}

	var form stepAuth.EnrollmentForm
	if form.Email, err = h.prompt.ask("Email", ""); err != nil {
		return err
	}
	if form.Password, err = h.prompt.secret("Password"); err != nil {
		return err
	}
	if form.ConfirmPassword, err = h.prompt.secret("Confirm password"); err != nil {
		return err
	}

	types := []string{string(stepAuth.UserTypeCustomer), string(stepAuth.UserTypeAdmin)}
	i, err := h.prompt.choose("User type", types)
	if err != nil {
		return err
	}
	form.UserType = stepAuth.UserType(types[i])

	questions := h.engine.SecurityQuestions()
	for n := range form.Questions {
		i, err := h.prompt.choose(fmt.Sprintf("Security question %d", n+1), questions)
		if err != nil {
			return err
		}
		answer, err := h.prompt.ask("Answer", "")
		if err != nil {
			return err
		}
		form.Questions[n] = stepAuth.SecurityQuestionEntry{Question: questions[i], Answer: answer}
	}

	for {
		p := enr.Puzzle()
		fmt.Fprintf(h.out, "Decode %s (shift %d). Type 'new' for another puzzle.\n", p.Ciphertext, p.Shift)
		answer, err := h.prompt.ask("Cipher answer", "")
		if err != nil {
			return err
		}
		if answer == "new" {
			if err := enr.Regenerate(); err != nil {
				return err
			}
			continue
		}
		enr.SetCipherAnswer(answer)

		if _, err := h.engine.Register(ctx, enr, form); err != nil {
			fmt.Fprintln(h.out, stepAuth.Message(err))
			var ve *stepAuth.ValidationError
			if errors.As(err, &ve) && ve.Reason == stepAuth.ReasonCipherMismatch {
				continue
			}
			return nil
		}
		break
	}

	fmt.Fprintln(h.out, "Registration received. Check your email for the confirmation code.")
	return h.confirm(ctx, form.Email)
}

func (h *harness) confirm(ctx context.Context, email string) error {
	if email == "" {
		var err error
		if email, err = h.prompt.ask("Email", h.engine.LastEmail(ctx)); err != nil {
			return err
		}
	}

	conf, err := h.engine.StartConfirmation(ctx, email)
	if err != nil {
		fmt.Fprintln(h.out, stepAuth.Message(err))
		return nil
	}
	defer conf.Close()

	for {
		input, err := h.prompt.ask("Code (or 'resend')", "")
		if err != nil {
			return err
		}

		if input == "resend" {
			if !conf.CanResend() {
				fmt.Fprintf(h.out, "Resend available in %s.\n", conf.CooldownRemaining())
				continue
			}
			if err := conf.Resend(ctx); err != nil {
				fmt.Fprintln(h.out, stepAuth.Message(err))
				continue
			}
			fmt.Fprintln(h.out, "A new code was sent.")
			continue
		}

		for conf.Focus() > 0 || conf.Code() != "" {
			conf.Backspace()
		}
		conf.Paste(input)

		err = conf.Submit(ctx)
		switch {
		case err == nil:
			fmt.Fprintln(h.out, "Account confirmed. You can sign in now.")
			return nil
		case errors.Is(err, stepAuth.ErrConfirmationRejected):
			fmt.Fprintln(h.out, stepAuth.Message(err))
			return nil
		default:
			fmt.Fprintln(h.out, stepAuth.Message(err))
		}
	}
}

func (h *harness) signIn(ctx context.Context) error {
	email, err := h.prompt.ask("Email", h.engine.LastEmail(ctx))
	if err != nil {
		return err
	}
	pass, err := h.prompt.secret("Password")
	if err != nil {
		return err
	}

	a, err := h.engine.SignIn(ctx, stepAuth.Credential{Email: email, Password: pass})
	if a == nil {
		fmt.Fprintln(h.out, stepAuth.Message(err))
		return nil
	}

	for !a.Step().Terminal() {
		var answer string
		switch a.Kind() {
		case stepAuth.ChallengeQuestion:
			answer, err = h.prompt.ask(a.Question(), "")
		case stepAuth.ChallengeCipher:
			shift, _ := a.CipherShift()
			answer, err = h.prompt.ask(fmt.Sprintf("Decode %s (shift %d)", a.CipherChallenge(), shift), "")
		}
		if err != nil {
			h.engine.Abandon(a)
			return err
		}

		next, err := h.engine.Answer(ctx, a, answer)
		if err != nil && next == a {
			fmt.Fprintln(h.out, stepAuth.Message(err))
			continue
		}
		a = next
	}

	if a.Step() == stepAuth.StepComplete {
		fmt.Fprintf(h.out, "Signed in as %s (%s). Redirecting to %s.\n", a.Email(), a.Role(), a.Destination())
		return nil
	}

	fmt.Fprintln(h.out, stepAuth.Message(a.Err()))
	if r, ok := a.Redirect(); ok {
		return h.confirm(ctx, r.Email)
	}
	return nil
}
