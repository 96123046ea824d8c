// Package notify delivers transactional email through the mail provider's
// v3 REST API. It carries response forwarding to organization inboxes and
// operator notifications for account requests.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/pkg/logger"
)

const defaultAPIBase = "https://api.sendgrid.com"

// Notifier sends transactional email. SendEmail carries plain text,
// SendHTMLEmail carries an HTML body; response forwarding uses the
// latter.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendHTMLEmail(ctx context.Context, to, subject, html string) error
}

// SendGridNotifier implements Notifier over the provider's JSON mail API.
type SendGridNotifier struct {
	apiBase    string
	apiKey     string
	from       string
	httpClient *http.Client
}

var _ Notifier = (*SendGridNotifier)(nil)

// NewSendGridNotifier creates a notifier sending from the given address.
func NewSendGridNotifier(apiKey, from string, timeout time.Duration) *SendGridNotifier {
	return &SendGridNotifier{
		apiBase:    defaultAPIBase,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewSendGridNotifierWithBase is used by tests to point at a fake server.
func NewSendGridNotifierWithBase(apiBase, apiKey, from string, timeout time.Duration) *SendGridNotifier {
	n := NewSendGridNotifier(apiKey, from, timeout)
	n.apiBase = strings.TrimRight(apiBase, "/")
	return n
}

type mailAddress struct {
	Email string `json:"email"`
}

type mailPersonalization struct {
	To []mailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSendRequest struct {
	Personalizations []mailPersonalization `json:"personalizations"`
	From             mailAddress           `json:"from"`
	Subject          string                `json:"subject"`
	Content          []mailContent         `json:"content"`
}

// SendEmail posts a single plain-text message.
func (n *SendGridNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	return n.send(ctx, to, subject, body, "text/plain")
}

// SendHTMLEmail posts a single HTML message.
func (n *SendGridNotifier) SendHTMLEmail(ctx context.Context, to, subject, html string) error {
	return n.send(ctx, to, subject, html, "text/html")
}

// send posts one message. The provider returns 202 on acceptance;
// anything else is a provider error.
func (n *SendGridNotifier) send(ctx context.Context, to, subject, body, contentType string) error {
	if to == "" {
		return fmt.Errorf("missing recipient address: %w", apperrors.ErrBadRequest)
	}

	payload := mailSendRequest{
		Personalizations: []mailPersonalization{{To: []mailAddress{{Email: to}}}},
		From:             mailAddress{Email: n.from},
		Subject:          subject,
		Content:          []mailContent{{Type: contentType, Value: body}},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiBase+"/v3/mail/send", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %v: %w", err, apperrors.ErrProvider)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.FromContext(ctx).Warn("Mail provider rejected request",
			zap.Int("http_status", resp.StatusCode),
			zap.String("detail", string(detail)),
		)
		return fmt.Errorf("mail provider error %d: %w", resp.StatusCode, apperrors.ErrProvider)
	}

	return nil
}
