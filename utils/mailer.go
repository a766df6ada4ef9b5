package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
	AppURL    string
}

// Configured reports whether an SMTP host is set.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port > 0
}

type EmailData struct {
	Subject  string
	To       []string
	CC       []string
	BCC      []string
	Template string
	Data     interface{}
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer renders the embedded templates and delivers them over SMTP.
type Mailer struct {
	cfg       SMTPConfig
	dialer    dialer
	templates map[string]*template.Template
	log       *logrus.Entry
}

// NewMailer returns a mailer for cfg. Without an SMTP host, messages are
// written to the log instead of being delivered.
func NewMailer(cfg SMTPConfig, log *logrus.Entry) *Mailer {
	if !cfg.Configured() {
		log.Warn("SMTP not configured; emails will only be logged")
		return newMailer(cfg, logDialer{log: log}, log)
	}
	return newMailer(cfg, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), log)
}

type logDialer struct {
	log *logrus.Entry
}

func (d logDialer) DialAndSend(msgs ...*gomail.Message) error {
	for _, m := range msgs {
		var body bytes.Buffer
		if _, err := m.WriteTo(&body); err != nil {
			return err
		}
		d.log.WithFields(logrus.Fields{
			"to":      m.GetHeader("To"),
			"subject": m.GetHeader("Subject"),
		}).Info("email not delivered (no SMTP)")
		d.log.Debug(body.String())
	}
	return nil
}

func newMailer(cfg SMTPConfig, d dialer, log *logrus.Entry) *Mailer {
	templates := make(map[string]*template.Template, len(emailTemplates))
	for name, content := range emailTemplates {
		templates[name] = template.Must(template.New(name).Parse(content))
	}
	return &Mailer{cfg: cfg, dialer: d, templates: templates, log: log}
}

// Embedded email templates
var emailTemplates = map[string]string{
	"otp": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .otp-code { font-size: 24px; font-weight: bold; color: #3498db; margin: 20px 0; text-align: center; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header"><h2>Your sign-in code</h2></div>
    <p>Hello,</p>
    <p>Use this code to sign in to Taskboard:</p>
    <div class="otp-code">{{.Code}}</div>
    <p>This code will expire in {{.Minutes}} minutes. Please don't share it with anyone.</p>
    <div class="footer">
        <p>If you didn't request this code, you can safely ignore this email.</p>
        <p>© {{.Year}} Taskboard</p>
    </div>
</body>
</html>`,

	"invitation": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .button { display: inline-block; padding: 10px 20px; background-color: #3498db; color: white; text-decoration: none; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header"><h2>You've been invited to {{.BoardName}}</h2></div>
    <p>Hello,</p>
    <p>{{.InviterName}} invited you to collaborate on the board <strong>{{.BoardName}}</strong>.</p>
    <p style="text-align: center;">
        <a href="{{.Link}}" class="button">Open Taskboard</a>
    </p>
    <p>Sign in with this email address to see the invitation.</p>
    <div class="footer">
        <p>© {{.Year}} Taskboard</p>
    </div>
</body>
</html>`,
}

func (m *Mailer) SendEmail(data EmailData) error {
	tmpl, ok := m.templates[data.Template]
	if !ok {
		return fmt.Errorf("template '%s' not found", data.Template)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data.Data); err != nil {
		return fmt.Errorf("error executing template: %v", err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.FromEmail, m.cfg.FromName)
	msg.SetHeader("To", data.To...)
	if len(data.CC) > 0 {
		msg.SetHeader("Cc", data.CC...)
	}
	if len(data.BCC) > 0 {
		msg.SetHeader("Bcc", data.BCC...)
	}
	msg.SetHeader("Subject", data.Subject)
	msg.SetBody("text/html", body.String())

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.log.WithError(err).WithField("template", data.Template).Error("SMTP delivery failed")
		return fmt.Errorf("error sending email: %v", err)
	}

	m.log.WithFields(logrus.Fields{
		"template": data.Template,
		"to":       data.To,
	}).Debug("email sent")
	return nil
}

// SendVerificationCode mails a sign-in code.
func (m *Mailer) SendVerificationCode(to, code string, ttl time.Duration) error {
	subject := "Your Taskboard sign-in code"
	return m.SendEmail(EmailData{
		Subject:  subject,
		To:       []string{to},
		Template: "otp",
		Data: struct {
			Subject string
			Code    string
			Minutes int
			Year    int
		}{subject, code, int(ttl.Minutes()), time.Now().Year()},
	})
}

// SendInvitation tells someone without an account about a board invitation.
func (m *Mailer) SendInvitation(to, boardName, inviterName string) error {
	subject := fmt.Sprintf("%s invited you to %s", inviterName, boardName)
	return m.SendEmail(EmailData{
		Subject:  subject,
		To:       []string{to},
		Template: "invitation",
		Data: struct {
			Subject     string
			BoardName   string
			InviterName string
			Link        string
			Year        int
		}{subject, boardName, inviterName, m.cfg.AppURL, time.Now().Year()},
	})
}
