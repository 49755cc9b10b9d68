package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/acarl005/stripansi"
)

// maxDrain bounds how much of a response body is read before closing it so
// the connection can be reused.
const maxDrain = 4 << 10

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Poster is what the relay needs from a sender.
type Poster interface {
	Send(ctx context.Context, endpoint, text string) error
}

type payload struct {
	Text string `json:"text"`
}

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("webhook returned %s", e.Status)
	}
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// TransportError wraps DNS, TCP, TLS and timeout failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	// url.Error leads with the request URL, which carries the webhook secret.
	var uerr *url.Error
	if errors.As(e.Err, &uerr) {
		return fmt.Sprintf("request failed: %v", uerr.Err)
	}
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Sender struct {
	client    HTTPClient
	userAgent string
	stripANSI bool
}

type SenderOption func(*Sender)

func WithHTTPClient(c HTTPClient) SenderOption {
	return func(s *Sender) { s.client = c }
}

func WithUserAgent(ua string) SenderOption {
	return func(s *Sender) { s.userAgent = ua }
}

func WithStripANSI(strip bool) SenderOption {
	return func(s *Sender) { s.stripANSI = strip }
}

func NewSender(timeout time.Duration, opts ...SenderOption) *Sender {
	s := &Sender{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: "slacker",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts {"text": text} to endpoint. It makes exactly one attempt.
func (s *Sender) Send(ctx context.Context, endpoint, text string) error {
	if s.stripANSI {
		text = stripansi.Strip(text)
	}

	body, err := encodePayload(text)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if !IsSuccess(resp.StatusCode) {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// encodePayload keeps <, > and & as-is; Slack reads them as its own markup.
func encodePayload(text string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload{Text: text}); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
