package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email is one outgoing message to a single recipient.
type Email struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
	HTML    string
}

type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// Sender identity shared by every transport.
type From struct {
	Name    string
	Email   string
	AppName string
}

func (f From) subject(s string) string {
	if f.AppName == "" {
		return s
	}
	return "[" + f.AppName + "] " + s
}

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type SendgridSender struct {
	key  string
	host string
	from From
}

var _ EmailSender = (*SendgridSender)(nil)

func NewSendgridSender(key string, from From) *SendgridSender {
	return &SendgridSender{key: key, host: sendgridHost, from: from}
}

func (s *SendgridSender) prepare(msg Email) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.from.subject(msg.Subject)
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(s.from.Name, s.from.Email))
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

// Send posts synchronously so the dispatcher can record the outcome.
func (s *SendgridSender) Send(ctx context.Context, msg Email) error {
	if msg.ToEmail == "" {
		return errors.New("email has no recipient")
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return errors.Wrap(err, "sending email")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sending email - status: %d - body: %s", res.StatusCode, res.Body)
	}
	return nil
}

// ConsoleSender prints messages instead of sending them and keeps a copy of
// each one.
type ConsoleSender struct {
	from From
	out  io.Writer

	mu   sync.Mutex
	sent []Email
}

var _ EmailSender = (*ConsoleSender)(nil)

func NewConsoleSender(f From, out io.Writer) *ConsoleSender {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSender{from: f, out: out}
}

func (s *ConsoleSender) Send(ctx context.Context, msg Email) error {
	if msg.ToEmail == "" {
		return errors.New("email has no recipient")
	}
	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "From: %s <%s>\r\n", s.from.Name, s.from.Email)
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", s.from.subject(msg.Subject))
	_, _ = fmt.Fprintf(body, "To: %s <%s>\r\n\r\n", msg.ToName, msg.ToEmail)
	_, _ = fmt.Fprintf(body, "%s\r\n", msg.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.out, body.String()); err != nil {
		return errors.Wrap(err, "writing email")
	}
	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns a copy of every message written so far.
func (s *ConsoleSender) Sent() []Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Email(nil), s.sent...)
}
