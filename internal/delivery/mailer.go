package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"paie/internal/attendance"
)

// Mailer sends codes over SMTP.
type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer creates a mailer. Auth is skipped when username is empty.
func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		send:     smtp.SendMail,
	}
}

// Deliver sends one code email. smtp.SendMail has no context, so the
// deadline is only checked before sending.
func (m *Mailer) Deliver(ctx context.Context, d attendance.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Address) == "" {
		return errors.New("mailer: recipient address required")
	}
	if m.Host == "" || m.From == "" {
		return errors.New("mailer: smtp host and from address required")
	}
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	if err := m.send(addr, auth, m.From, []string{d.Address}, m.compose(d, time.Now())); err != nil {
		return fmt.Errorf("mailer: send failed: %w", err)
	}
	return nil
}

func (m *Mailer) compose(d attendance.Delivery, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", d.Address)
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(Body(d))
	return []byte(b.String())
}
