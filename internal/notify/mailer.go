// Package notify renders and sends email notifications for newly detected
// listings. Delivery is best-effort: a send failure is logged and swallowed,
// never retried, and never aborts the check cycle that produced it.
package notify

import (
	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/roelvdh/marktwatch/internal/config"
	"github.com/roelvdh/marktwatch/pkg/models"
)

// Mailer sends notification email through a configured SMTP transport.
type Mailer struct {
	converter *md.Converter
}

// NewMailer creates a Mailer.
func NewMailer() *Mailer {
	return &Mailer{converter: md.NewConverter("", true, nil)}
}

// Notify sends a single notification covering the new-items set for one
// target. No-op when notifications are disabled or the set is empty. Errors
// are logged, not returned: at most one delivery attempt per detected change.
func (m *Mailer) Notify(cfg config.Email, target string, items []models.Listing) {
	if !cfg.Enabled || len(items) == 0 {
		return
	}

	html, err := RenderHTML(target, items)
	if err != nil {
		log.Error().Err(err).Str("target", target).Msg("Failed to render notification email")
		return
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "New listings found"
	}

	if err := m.Send(cfg, subject, html); err != nil {
		log.Error().Err(err).Str("target", target).Int("items", len(items)).
			Msg("Notification delivery failed")
		return
	}

	log.Info().Str("target", target).Int("items", len(items)).Msg("Notification sent")
}

// Send delivers one email with an HTML body and a markdown-rendered plain
// text alternative. Used directly by the test-email and send-email endpoints.
func (m *Mailer) Send(cfg config.Email, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", cfg.From)
	msg.SetHeader("To", cfg.To)
	msg.SetHeader("Subject", subject)

	if text, err := m.converter.ConvertString(htmlBody); err == nil {
		msg.SetBody("text/plain", text)
		msg.AddAlternative("text/html", htmlBody)
	} else {
		msg.SetBody("text/html", htmlBody)
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return dialer.DialAndSend(msg)
}

// SendTest delivers a canned test message so the dashboard can verify the
// configured transport.
func (m *Mailer) SendTest(cfg config.Email) error {
	return m.Send(cfg, "marktwatch test email",
		"<p>This is a test email from marktwatch. Your email settings work.</p>")
}
