package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/pkg/logger"
)

const apiVersion = "2010-04-01"

// TwilioClient talks to the provider's form-encoded REST API.
type TwilioClient struct {
	baseURL    string
	httpClient *http.Client
}

// Ensure TwilioClient implements Client
var _ Client = (*TwilioClient)(nil)

// NewTwilioClient creates a provider client with the given API root and
// request timeout. The timeout is the only bound on a send; dispatch does
// not enforce its own.
func NewTwilioClient(baseURL string, timeout time.Duration) *TwilioClient {
	return &TwilioClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiResponse is the subset of the provider response we care about.
type apiResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send performs one outbound provider operation and returns the provider
// identifier (message SID or call SID).
func (c *TwilioClient) Send(ctx context.Context, creds Credentials, req SendRequest) (string, error) {
	resource, ok := kindResources[req.Kind]
	if !ok {
		return "", fmt.Errorf("unsupported send kind %q: %w", req.Kind, apperrors.ErrBadRequest)
	}

	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.To)
	switch req.Kind {
	case KindSMS, KindWhatsApp:
		form.Set("Body", req.Body)
		if req.MediaURL != "" {
			form.Set("MediaUrl", req.MediaURL)
		}
	case KindVoice, KindCall:
		form.Set("Url", req.CallbackURL)
	}
	if req.StatusCallback != "" {
		form.Set("StatusCallback", req.StatusCallback)
	}

	endpoint := fmt.Sprintf("%s/%s/Accounts/%s/%s", c.baseURL, apiVersion, creds.AccountSID, resource)
	return c.post(ctx, creds, endpoint, form)
}

// CreateConferenceParticipant dials a recipient into a named conference
// session.
func (c *TwilioClient) CreateConferenceParticipant(ctx context.Context, creds Credentials, conference, from, to string) (string, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)

	endpoint := fmt.Sprintf("%s/%s/Accounts/%s/Conferences/%s/Participants.json",
		c.baseURL, apiVersion, creds.AccountSID, url.PathEscape(conference))
	return c.post(ctx, creds, endpoint, form)
}

func (c *TwilioClient) post(ctx context.Context, creds Credentials, endpoint string, form url.Values) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(creds.AccountSID, creds.AuthToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("provider request failed: %v: %w", err, apperrors.ErrProvider)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read provider response: %v: %w", err, apperrors.ErrProvider)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("malformed provider response (status %d): %w", resp.StatusCode, apperrors.ErrProvider)
	}

	if resp.StatusCode >= 400 {
		logger.FromContext(ctx).Warn("Provider rejected request",
			zap.Int("http_status", resp.StatusCode),
			zap.Int("provider_code", parsed.Code),
			zap.String("provider_message", parsed.Message),
		)
		return "", fmt.Errorf("provider error %d: %s: %w", parsed.Code, parsed.Message, apperrors.ErrProvider)
	}

	return parsed.SID, nil
}

// WhatsAppAddress prefixes an E.164 number with the provider's WhatsApp
// scheme marker if not already present.
func WhatsAppAddress(phone string) string {
	if strings.HasPrefix(phone, model.WhatsAppPrefix) {
		return phone
	}
	return model.WhatsAppPrefix + phone
}
