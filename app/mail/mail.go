// Package mail sends transactional account mail over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/mkravets/contacts-api/config"
)

const dialTimeout = 8 * time.Second

var verificationTmpl = template.Must(template.New("verification").Parse(`<html>
<body>
  <h2>Hi {{.Username}},</h2>
  <p>Thanks for signing up. Click the link below to activate your account:</p>
  <p><a href="{{.VerificationURL}}">Activate my account</a></p>
  <p>If you did not create this account, you can safely ignore this message.</p>
</body>
</html>`))

var resetPasswordTmpl = template.Must(template.New("reset").Parse(`<html>
<body>
  <h2>Hi {{.Username}},</h2>
  <p>We received a request to reset your password. Use this token to set a new one:</p>
  <p><code>{{.ResetToken}}</code></p>
  <p>If you did not request a password reset, you can safely ignore this message.</p>
</body>
</html>`))

// SMTPMailer delivers mail through a single SMTP account. Port 465 speaks
// implicit TLS, everything else upgrades with STARTTLS when offered.
type SMTPMailer struct {
	logger   *slog.Logger
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
}

func NewSMTPMailer(cfg config.MailConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		logger:   logger,
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		fromName: cfg.FromName,
	}
}

func (m *SMTPMailer) SendVerificationMail(ctx context.Context, email, username, verificationURL string) error {
	body, err := render(verificationTmpl, map[string]string{
		"Username":        username,
		"VerificationURL": verificationURL,
	})
	if err != nil {
		return err
	}
	return m.send(ctx, email, "Activate your account", body)
}

func (m *SMTPMailer) SendResetPasswordMail(ctx context.Context, email, username, resetToken string) error {
	body, err := render(resetPasswordTmpl, map[string]string{
		"Username":   username,
		"ResetToken": resetToken,
	})
	if err != nil {
		return err
	}
	return m.send(ctx, email, "Reset password", body)
}

func render(tmpl *template.Template, data map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render mail template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, htmlBody string) error {
	msg := strings.Join([]string{
		fmt.Sprintf("From: %s <%s>", m.fromName, m.from),
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")

	m.logger.DebugContext(ctx, "sending mail", slog.String("to", to), slog.String("subject", subject))
	if err := m.deliver(ctx, to, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	}

	if m.port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: m.host})
	}

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = c.Quit() }()

	if m.port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
				return err
			}
		}
	}

	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}

	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
