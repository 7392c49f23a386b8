package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

type Config struct {
	Host     string
	Port     int
	From     string
	Password string
}

type Mailer struct {
	cfg Config
	log *zerolog.Logger
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// Enabled reports whether SMTP credentials were configured. Notifications
// are skipped silently when they were not.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Host != "" && m.cfg.From != ""
}

// SendRegistrationEmail notifies the participant about a registration event.
// kind is one of "pending", "paid", "cancelled".
func (m *Mailer) SendRegistrationEmail(eventTitle, kind, recipientEmail string) error {
	if !m.Enabled() {
		return nil
	}

	var subject, body string
	switch kind {
	case "pending":
		subject = "Inscrição recebida"
		body = fmt.Sprintf("Olá!\n\nSua inscrição no evento «%s» foi registrada e está aguardando aprovação e pagamento.", eventTitle)
	case "paid":
		subject = "Pagamento confirmado"
		body = fmt.Sprintf("Olá!\n\nO pagamento da sua inscrição no evento «%s» foi confirmado. Até lá!", eventTitle)
	case "cancelled":
		subject = "Inscrição cancelada"
		body = fmt.Sprintf("Olá!\n\nSua inscrição no evento «%s» foi cancelada.", eventTitle)
	default:
		return fmt.Errorf("unknown email kind %q", kind)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.From, recipientEmail, subject, body,
	)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{recipientEmail}, []byte(msg)); err != nil {
		m.log.Warn().Msgf("Failed to email %s: %v", recipientEmail, err)
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Msgf("Email sent to %s (kind: %s)", recipientEmail, kind)
	return nil
}
