package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// Email sends alerts as plain-text mail over SMTP.
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

// NewEmail builds the channel. An empty username skips authentication,
// for relays on trusted networks.
func NewEmail(host string, port int, username, password, from string, to []string) *Email {
	return &Email{host: host, port: port, username: username, password: password, from: from, to: to}
}

func (e *Email) Name() string { return "email" }

// Send delivers one message. The first line of text becomes the subject.
func (e *Email) Send(ctx context.Context, text string) error {
	subject := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		subject = text[:i]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(text, "\n", "\r\n"))

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	if err := smtp.SendMail(addr, auth, e.from, e.to, []byte(b.String())); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}
