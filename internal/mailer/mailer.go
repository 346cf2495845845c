// Package mailer renders and sends transactional storefront emails.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
)

// Sender delivers a rendered email. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSender builds a sender for the given relay address ("host:port").
// Username may be empty for unauthenticated relays.
func NewSMTPSender(addr, from, username, password string) (*SMTPSender, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("smtp addr is required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("smtp from address is required")
	}
	var auth smtp.Auth
	if username != "" {
		host := addr
		if idx := strings.LastIndex(addr, ":"); idx >= 0 {
			host = addr[:idx]
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{addr: addr, from: from, auth: auth}, nil
}

// Send delivers one message. Context is checked before dialing; net/smtp
// itself does not support cancellation mid-send.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s", s.from, to, subject, body)
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// RecordedMail is one captured message.
type RecordedMail struct {
	To      string
	Subject string
	Body    string
}

// RecordingSender captures messages instead of delivering them. Used by
// tests.
type RecordingSender struct {
	mu    sync.Mutex
	mails []RecordedMail
}

// NewRecordingSender initializes an empty recorder.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

func (r *RecordingSender) Send(_ context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mails = append(r.mails, RecordedMail{To: to, Subject: subject, Body: body})
	return nil
}

// Sent returns a copy of the captured messages.
func (r *RecordingSender) Sent() []RecordedMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedMail, len(r.mails))
	copy(out, r.mails)
	return out
}
