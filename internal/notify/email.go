package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/config"
	"github.com/modwatch/modqueue/internal/db"
)

// EmailTransport is stateless: no queuing, the provider handles its own
// retries. Delivered or Failed only.
type EmailTransport struct {
	cfg config.Email
}

func NewEmailTransport(cfg config.Email) *EmailTransport {
	return &EmailTransport{cfg: cfg}
}

func (t *EmailTransport) Channel() Channel {
	return ChannelEmail
}

func (t *EmailTransport) Send(ctx context.Context, user *db.WebUser, msg Message) (Outcome, error) {
	if t.cfg.Host == "" || t.cfg.From == "" {
		return OutcomeFailed, ErrChannelDisabled
	}
	if user.Email == "" {
		return OutcomeFailed, fmt.Errorf("user %s has no email address", user.ID)
	}
	select {
	case <-ctx.Done():
		return OutcomeFailed, ctx.Err()
	default:
	}

	if err := t.sendEmail(ctx, user.Email, msg.Subject, renderEmailBody(msg.Subject, msg.Body)); err != nil {
		return OutcomeFailed, err
	}
	log.WithField("to", user.Email).Debug("email sent")
	return OutcomeDelivered, nil
}

func renderEmailBody(subject, body string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%s</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #4a90e2;">%s</h2>
        <p style="white-space: pre-line;">%s</p>
        <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated moderation notification. Please do not reply.</p>
    </div>
</body>
</html>
`, subject, subject, body)
}

// smtpTimeout caps the whole SMTP exchange so a hung relay cannot
// stall a recipient's fan-out goroutine.
const smtpTimeout = 30 * time.Second

func (t *EmailTransport) sendEmail(ctx context.Context, to, subject, body string) error {
	headers := map[string]string{
		"From":         t.cfg.From,
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=UTF-8",
	}

	var message bytes.Buffer
	for k, v := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)
	dialer := &net.Dialer{Timeout: smtpTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(smtpTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	// Local relays (e.g. Mailpit) take no credentials; auth errors from
	// those are ignored on purpose.
	if t.cfg.Username != "" && t.cfg.Password != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		_ = client.Auth(auth)
	}

	if err := client.Mail(t.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	defer wc.Close()

	if _, err := wc.Write(message.Bytes()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
