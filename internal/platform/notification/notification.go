// Package notification provides the outbound notification contracts used by
// the treatment lifecycle: per-channel senders (email, internal alert) and a
// best-effort dispatcher with a bounded per-call timeout.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Sender contracts
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

// AlertSender is the interface for posting a message to the clinic's internal
// alert channel.
type AlertSender interface {
	SendAlert(ctx context.Context, text string) error
}

// ---------------------------------------------------------------------------
// SMTP email sender
// ---------------------------------------------------------------------------

// SMTPEmailSender sends mail through a plain SMTP relay.
type SMTPEmailSender struct {
	Addr string // host:port of the relay
	From string
}

func NewSMTPEmailSender(addr, from string) *SMTPEmailSender {
	return &SMTPEmailSender{Addr: addr, From: from}
}

// SendEmail sends one message to all recipients.
func (s *SMTPEmailSender) SendEmail(_ context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return errors.New("no recipients")
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(s.Addr, nil, s.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Webhook alert sender
// ---------------------------------------------------------------------------

// WebhookAlertSender posts alert text as JSON to a configured webhook URL
// (the clinic's internal alert channel).
type WebhookAlertSender struct {
	url    string
	client *http.Client
}

func NewWebhookAlertSender(url string) *WebhookAlertSender {
	return &WebhookAlertSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendAlert delivers the alert text, treating any non-2xx response as an error.
func (w *WebhookAlertSender) SendAlert(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", w.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher sends notifications best-effort: every call is bounded by a
// timeout, failures are logged and swallowed, and one channel failing never
// prevents another channel from being attempted.
type Dispatcher struct {
	email   EmailSender
	alert   AlertSender
	timeout time.Duration
	logger  zerolog.Logger
}

func NewDispatcher(email EmailSender, alert AlertSender, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{email: email, alert: alert, timeout: timeout, logger: logger}
}

// Email attempts one email delivery and reports whether it succeeded.
func (d *Dispatcher) Email(ctx context.Context, to []string, subject, body string) bool {
	if d.email == nil || len(to) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.email.SendEmail(ctx, to, subject, body); err != nil {
		d.logger.Warn().Err(err).
			Strs("recipients", to).
			Str("subject", subject).
			Msg("email delivery failed")
		return false
	}
	return true
}

// Alert attempts one alert-channel delivery and reports whether it succeeded.
func (d *Dispatcher) Alert(ctx context.Context, text string) bool {
	if d.alert == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.alert.SendAlert(ctx, text); err != nil {
		d.logger.Warn().Err(err).Msg("alert delivery failed")
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Mock senders (test doubles)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      []string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
	Delay      time.Duration
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// AlertCall records a single call to SendAlert.
type AlertCall struct {
	Text string
}

// MockAlertSender is a test double for AlertSender.
type MockAlertSender struct {
	mu         sync.Mutex
	calls      []AlertCall
	ShouldFail bool
	FailError  string
}

// SendAlert records the call and optionally returns an error.
func (m *MockAlertSender) SendAlert(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, AlertCall{Text: text})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded alert calls.
func (m *MockAlertSender) Calls() []AlertCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AlertCall, len(m.calls))
	copy(out, m.calls)
	return out
}
