package localidp

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// CodeSender delivers confirmation codes and the post-confirmation welcome.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string) error
	SendWelcome(ctx context.Context, email string) error
}

// LogSender writes codes to a logger. It is meant for local runs where no
// mail server exists.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s LogSender) SendCode(ctx context.Context, email, code string) error {
	s.logger().InfoContext(ctx, "localidp: confirmation code", "email", email, "code", code)
	return nil
}

func (s LogSender) SendWelcome(ctx context.Context, email string) error {
	s.logger().InfoContext(ctx, "localidp: registration complete", "email", email)
	return nil
}

// SMTPConfig holds mail server settings for SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
}

// SMTPSender mails codes through an SMTP relay.
type SMTPSender struct {
	dialer  *gomail.Dialer
	from    string
	appName string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	appName := cfg.AppName
	if appName == "" {
		appName = "stepAuth"
	}
	return &SMTPSender{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		appName: appName,
	}
}

func (s *SMTPSender) SendCode(ctx context.Context, email, code string) error {
	m := s.message(email, "Your "+s.appName+" verification code")
	m.SetBody("text/html", fmt.Sprintf(`
		<h3>Confirm your registration</h3>
		<p>Your verification code is <strong>%s</strong>.</p>
		<p>If you did not sign up, you can ignore this email.</p>
	`, code))

	if err := s.send(ctx, m); err != nil {
		return fmt.Errorf("failed to send confirmation code: %w", err)
	}
	return nil
}

func (s *SMTPSender) SendWelcome(ctx context.Context, email string) error {
	m := s.message(email, "Welcome to "+s.appName)
	m.SetBody("text/html", fmt.Sprintf(`
		<h2>Welcome to %s, %s!</h2>
		<p>Your registration is complete.</p>
	`, s.appName, email))

	if err := s.send(ctx, m); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(to, subject string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	return m
}

// send dials in a goroutine so a cancelled ctx releases the caller; the
// dial itself is not interruptible.
func (s *SMTPSender) send(ctx context.Context, m *gomail.Message) error {
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
