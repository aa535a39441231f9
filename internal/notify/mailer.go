// Package notify emails founders when their diligence report is ready.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"

	mail "github.com/go-mail/mail/v2"

	"diligencego/internal/config"
	"diligencego/internal/models"
)

var errNotConfigured = errors.New("smtp not configured (mail.host/mail.from)")

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

var reportReadyTmpl = template.Must(template.New("ready").Parse(
	`<p>The due diligence report for <strong>{{.StartupName}}</strong> is ready.</p>
<p>Status: {{.Status}}</p>
<pre style="white-space: pre-wrap">{{.Report}}</pre>`))

// Mailer sends report notifications over SMTP.
type Mailer struct {
	from   string
	sender sender
}

// NewMailer returns nil when mail is disabled.
func NewMailer(cfg config.MailConfig) (*Mailer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Host == "" || cfg.From == "" {
		return nil, errNotConfigured
	}
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Port == 587 {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	return &Mailer{from: cfg.From, sender: d}, nil
}

// ReportReady mails the report to the address given in the submission.
func (m *Mailer) ReportReady(ctx context.Context, sub *models.Submission) error {
	if m == nil || sub == nil || sub.Email == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var body bytes.Buffer
	if err := reportReadyTmpl.Execute(&body, sub); err != nil {
		return fmt.Errorf("render mail: %w", err)
	}
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", sub.Email)
	msg.SetHeader("Subject", fmt.Sprintf("Due diligence report ready: %s", sub.StartupName))
	msg.SetBody("text/html", body.String())
	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
