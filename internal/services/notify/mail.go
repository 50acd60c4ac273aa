package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/voicenote-intake/internal/config"
	"github.com/benvon/voicenote-intake/internal/models"
	"golang.org/x/time/rate"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailNotifier sends notification mail over SMTP, throttled to a fixed rate.
type MailNotifier struct {
	addr    string
	auth    smtp.Auth
	from    string
	to      string
	loc     *time.Location
	limiter *rate.Limiter
	send    SendFunc
}

// MailOptions configures a MailNotifier.
type MailOptions struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	To            string
	RatePerMinute int
	Location      *time.Location
	// Send replaces smtp.SendMail, mainly for tests.
	Send SendFunc
}

// NewMailNotifier validates addresses and builds the notifier.
func NewMailNotifier(opts MailOptions) (*MailNotifier, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	to, err := mail.ParseAddress(opts.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	fromRaw := opts.From
	if fromRaw == "" {
		fromRaw = "voicenotes@" + opts.Host
	}
	from, err := mail.ParseAddress(fromRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}

	perMinute := opts.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	send := opts.Send
	if send == nil {
		send = smtp.SendMail
	}

	m := &MailNotifier{
		addr:    net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		from:    from.Address,
		to:      to.Address,
		loc:     loc,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		send:    send,
	}
	if opts.Username != "" {
		m.auth = smtp.PlainAuth("", opts.Username, opts.Password, opts.Host)
	}
	return m, nil
}

// NewMailNotifierFromConfig reads SMTP settings from cfg.
func NewMailNotifierFromConfig(cfg *config.Config) (*MailNotifier, error) {
	return NewMailNotifier(MailOptions{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		Username:      cfg.SMTPUsername,
		Password:      cfg.SMTPPassword,
		From:          cfg.SMTPFrom,
		To:            cfg.AdminEmail,
		RatePerMinute: cfg.MailRatePerMinute,
		Location:      cfg.Location(),
	})
}

// Notify waits for a send slot, then mails n to the admin address.
func (m *MailNotifier) Notify(ctx context.Context, n models.Notification) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail throttle: %w", err)
	}
	msg := m.compose(n)
	// smtp.SendMail has no context; run it aside so cancellation still returns promptly.
	done := make(chan error, 1)
	go func() {
		done <- m.send(m.addr, m.auth, m.from, []string{m.to}, msg)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("send mail: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	}
}

func (m *MailNotifier) compose(n models.Notification) []byte {
	submitted := n.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	local := submitted.In(m.loc)

	var body strings.Builder
	body.WriteString("A new voice message has been submitted by a listener.\n\n")
	fmt.Fprintf(&body, "File Name: %s\n", n.Filename)
	fmt.Fprintf(&body, "Timestamp: %s (%s)\n\n", local.Format("2006-01-02 15:04:05"), m.loc.String())
	if n.ReviewURL != "" {
		body.WriteString("You can review and manage this submission in the admin dashboard:\n")
		body.WriteString(n.ReviewURL + "\n\n")
	}
	body.WriteString("File URL:\n")
	body.WriteString(n.URL + "\n\n")
	body.WriteString("---\n")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", local.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return buf.Bytes()
}
