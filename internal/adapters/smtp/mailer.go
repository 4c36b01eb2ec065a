package smtp

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/lim5max/checkly-billing/internal/domain/ports"
)

// Config holds SMTP transport settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Mailer implements ports.Mailer over SMTP
type Mailer struct {
	config Config
	dialer *gomail.Dialer
}

// NewMailer creates a new SMTP mailer
func NewMailer(config Config) *Mailer {
	return &Mailer{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}
}

// Send delivers one message. Each send dials a fresh connection; billing
// notification volume does not justify a persistent one.
func (m *Mailer) Send(msg ports.Message) error {
	mail := gomail.NewMessage()
	mail.SetAddressHeader("From", m.config.From, m.config.FromName)
	mail.SetHeader("To", msg.To)
	mail.SetHeader("Subject", msg.Subject)

	if msg.HTML {
		mail.SetBody("text/html", msg.Body)
	} else {
		mail.SetBody("text/plain", msg.Body)
	}

	if err := m.dialer.DialAndSend(mail); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}
