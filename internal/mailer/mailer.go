package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultSendTimeout = 10 * time.Second

// GatewayError classifies mail gateway call failures as transient/permanent.
type GatewayError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "mail gateway error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a failed send is worth redelivering.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

type sendRequest struct {
	UserID  string `json:"userId"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// GatewayMailer delivers emails through the platform's mail gateway, which
// resolves a user id to the account's email address.
type GatewayMailer struct {
	client   *resty.Client
	endpoint string
}

func NewGatewayMailer(endpoint string) (*GatewayMailer, error) {
	client := resty.New()
	client.SetTimeout(defaultSendTimeout)
	client.SetRetryCount(0)

	return NewGatewayMailerWithClient(endpoint, client)
}

func NewGatewayMailerWithClient(endpoint string, client *resty.Client) (*GatewayMailer, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("mail gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid mail gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	return &GatewayMailer{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (m *GatewayMailer) Send(ctx context.Context, userID, subject, body string) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("mailer is not initialized")
	}
	if strings.TrimSpace(userID) == "" {
		return &GatewayError{Message: "user id is required"}
	}

	response, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(sendRequest{UserID: userID, Subject: subject, Body: body}).
		Post(m.endpoint)
	if err != nil {
		return &GatewayError{
			Message:   "mail gateway request failed",
			Transient: true,
			Cause:     err,
		}
	}

	status := response.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 429 || status >= 500:
		return &GatewayError{
			StatusCode: status,
			Message:    "mail gateway rejected send",
			Transient:  true,
		}
	default:
		return &GatewayError{
			StatusCode: status,
			Message:    "mail gateway rejected send",
		}
	}
}
