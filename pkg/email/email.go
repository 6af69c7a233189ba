// Package email delivers account emails through Resend.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"

	"github.com/resend/resend-go/v2"
)

var layout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
  <style>
    body { background-color: #f6f7f9; font-family: sans-serif; margin: 0; padding: 40px 0; }
    .container { background-color: #ffffff; border-radius: 12px; padding: 40px; max-width: 480px; margin: 0 auto; }
    h1 { color: #111827; font-size: 24px; text-align: center; }
    .text { color: #4b5563; font-size: 16px; line-height: 24px; text-align: center; }
    .button { background-color: #2563eb; border-radius: 6px; color: #ffffff; font-weight: 700; text-decoration: none; display: block; padding: 12px 20px; margin: 24px auto; max-width: 220px; text-align: center; }
    .footer { color: #9ca3af; font-size: 12px; text-align: center; margin-top: 30px; }
  </style>
</head>
<body>
  <div class="container">
    <h1>{{.Title}}</h1>
    <p class="text">Hi {{.Name}}, {{.Body}}</p>
    {{if .Link}}<a class="button" href="{{.Link}}">{{.Action}}</a>{{end}}
    <p class="footer">{{.Footer}}</p>
  </div>
</body>
</html>
`))

type message struct {
	Title  string
	Name   string
	Body   string
	Link   string
	Action string
	Footer string
}

// Sender sends verification, password reset and welcome emails.
type Sender struct {
	client    *resend.Client
	fromEmail string
	appURL    string
	logger    *slog.Logger
}

// NewSender returns a Sender. With an empty apiKey emails are logged and skipped.
func NewSender(apiKey, fromEmail, appURL string, logger *slog.Logger) *Sender {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}
	return &Sender{
		client:    client,
		fromEmail: fromEmail,
		appURL:    appURL,
		logger:    logger,
	}
}

// Enabled reports whether a Resend client is configured.
func (s *Sender) Enabled() bool {
	return s.client != nil
}

func (s *Sender) SendVerificationEmail(ctx context.Context, to, name, token string) error {
	return s.send(ctx, to, "Confirm your email", message{
		Title:  "Confirm your email",
		Name:   name,
		Body:   "please confirm your address to finish setting up your budget.",
		Link:   s.link("/verify-email", token),
		Action: "Confirm email",
		Footer: "The link expires in 24 hours.",
	})
}

func (s *Sender) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	return s.send(ctx, to, "Reset your password", message{
		Title:  "Reset your password",
		Name:   name,
		Body:   "we received a request to reset your password.",
		Link:   s.link("/reset-password", token),
		Action: "Choose a new password",
		Footer: "The link expires in one hour. Ignore this email if you did not ask for it.",
	})
}

func (s *Sender) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return s.send(ctx, to, "Welcome to Split Budget", message{
		Title:  "You're all set",
		Name:   name,
		Body:   "your email is confirmed. Import a statement to see where your money goes.",
		Link:   s.appURL,
		Action: "Open Split Budget",
		Footer: "Needs, wants, reserves and investments, sorted every month.",
	})
}

func (s *Sender) link(path, token string) string {
	return s.appURL + path + "?token=" + url.QueryEscape(token)
}

func (s *Sender) send(ctx context.Context, to, subject string, msg message) error {
	if s.client == nil {
		s.logger.WarnContext(ctx, "resend client not configured, skipping email",
			slog.String("subject", subject),
			slog.String("to", to),
		)
		return nil
	}

	var body bytes.Buffer
	if err := layout.Execute(&body, msg); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		Html:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
