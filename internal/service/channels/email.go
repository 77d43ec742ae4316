package channels

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"
)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends plain-text mail over SMTP. The destination is an address.
type Email struct {
	addr     string
	host     string
	from     string
	auth     smtp.Auth
	sendMail SendMailFunc
}

// NewEmail creates an SMTP adapter. Auth is used only when username is set.
func NewEmail(host string, port int, username, password, from string) *Email {
	e := &Email{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		host:     host,
		from:     from,
		sendMail: smtp.SendMail,
	}
	if username != "" {
		e.auth = smtp.PlainAuth("", username, password, host)
	}
	return e
}

// WithSendMail replaces the transport, mainly for tests.
func (e *Email) WithSendMail(fn SendMailFunc) *Email {
	e.sendMail = fn
	return e
}

func (e *Email) Channel() models.Channel { return models.ChannelEmail }

// Send delivers msg to address. smtp.SendMail has no context, so the call runs
// in a goroutine and Send returns early when ctx ends.
func (e *Email) Send(ctx context.Context, address string, msg service.Message) error {
	if strings.ContainsAny(address, "\r\n") {
		return fmt.Errorf("email send: invalid address")
	}
	body := buildMail(e.from, address, msg)

	done := make(chan error, 1)
	go func() {
		done <- e.sendMail(e.addr, e.auth, e.from, []string{address}, body)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email send: %w", ctx.Err())
	}
}

func buildMail(from, to string, msg service.Message) []byte {
	subject := strings.NewReplacer("\r", " ", "\n", " ").Replace(msg.Subject)
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Text)
	b.WriteString("\r\n")
	return []byte(b.String())
}
