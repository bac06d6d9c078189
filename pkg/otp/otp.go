// Package otp retrieves one-time passcodes from the passcode web service.
package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/b2ctest/flowrunner/pkg/core"
)

// KeyHeader carries the service's function key.
const KeyHeader = "x-functions-key"

// Retriever returns the latest passcode sent to an email address.
type Retriever interface {
	Code(ctx context.Context, email, maxAge string) (string, error)
}

// Client calls the passcode service over HTTP.
type Client struct {
	URL  string
	Key  string
	HTTP *http.Client
}

// NewClient creates a client for the service at url.
func NewClient(url, key string) *Client {
	return &Client{
		URL:  url,
		Key:  key,
		HTTP: &http.Client{Timeout: 30 * time.Second},
	}
}

type request struct {
	Email  string `json:"email"`
	MaxAge string `json:"maxage"`
}

// Code posts {email, maxage} and returns the response body as the code with
// surrounding whitespace and quotes removed.
func (c *Client) Code(ctx context.Context, email, maxAge string) (string, error) {
	if c.URL == "" {
		return "", core.ErrOTPFailed.WithMessage("passcode service URL is not configured")
	}

	body, err := json.Marshal(request{Email: email, MaxAge: maxAge})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", core.ErrOTPFailed.WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.Key != "" {
		req.Header.Set(KeyHeader, c.Key)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", core.ErrOTPFailed.WithMessage("passcode service unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.ErrOTPFailed.WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", core.ErrOTPFailed.WithMessage(fmt.Sprintf("passcode service returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	code := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if code == "" {
		return "", core.ErrOTPFailed.WithMessage(fmt.Sprintf("no passcode for %s", email))
	}
	return code, nil
}
