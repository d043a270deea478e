// Package email delivers password reset codes over SMTP. Delivery is
// optional: when SMTP is unconfigured the code is only shown on screen.
package email

import (
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// Sender handles sending reset-code emails via SMTP.
type Sender struct {
	host     string
	port     string
	username string
	password string
	sender   string
}

// NewSender creates a new email sender.
func NewSender(host, port, username, password, sender string) *Sender {
	return &Sender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		sender:   sender,
	}
}

// SendResetCode mails a password reset code. A nil sender is a no-op so
// callers do not branch on whether mail is configured.
func (s *Sender) SendResetCode(to, username, code string) error {
	if s == nil {
		return nil
	}

	e := email.NewEmail()
	e.From = s.sender
	e.To = []string{to}
	e.Subject = "Password reset code"
	e.Text = []byte(fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your password reset code is: %s\n\n"+
			"Enter it on the reset page together with your new password.\n"+
			"If you did not request a reset you can ignore this message.\n",
		username, code,
	))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("send reset code email: %w", err)
	}

	slog.Info("Reset code email sent", "to", to)
	return nil
}
