// Package mail owns outbound email content and dispatch. Callers hand it a
// recipient and a code; subjects, bodies, and links are composed here.
package mail

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Sender delivers a single plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service composes verification and reset messages and hands them to the
// configured Sender.
type Service struct {
	sender  Sender
	baseURL string
}

// NewService returns a mail service composing links against baseURL.
func NewService(sender Sender, baseURL string) *Service {
	return &Service{sender: sender, baseURL: baseURL}
}

// SendVerificationEmail sends the account verification message for code.
// ttl is included in the body so the recipient knows how long the link lives.
func (s *Service) SendVerificationEmail(ctx context.Context, to, code string, ttl time.Duration) error {
	link := fmt.Sprintf("%s/api/auth/verify-email?code=%s", s.baseURL, code)
	body := fmt.Sprintf(
		"Hi,\n\nThanks for creating an account. Please verify your email by clicking the link below:\n\n%s\n\nThis link is valid for approximately %d minutes.\n\nIf you did not request this, you can ignore this email.\n",
		link, int(ttl.Minutes()),
	)
	return s.sender.Send(ctx, to, "Please verify your email", body)
}

// SendPasswordResetEmail sends the password reset message for code.
func (s *Service) SendPasswordResetEmail(ctx context.Context, to, code string, ttl time.Duration) error {
	link := fmt.Sprintf("%s/api/auth/reset-password?code=%s", s.baseURL, code)
	body := fmt.Sprintf(
		"Hi,\n\nA password reset was requested for your account. Click the link below to choose a new password:\n\n%s\n\nThis link is valid for approximately %d minutes.\n\nIf you did not request this, you can ignore this email.\n",
		link, int(ttl.Minutes()),
	)
	return s.sender.Send(ctx, to, "Password reset", body)
}

// LogSender writes messages to the process log instead of delivering them.
// Used in development when no SMTP host is configured.
type LogSender struct{}

// Send logs the message.
func (LogSender) Send(ctx context.Context, to, subject, body string) error {
	log.Printf("mail (not sent, no SMTP host): to=%s subject=%q", to, subject)
	return nil
}
