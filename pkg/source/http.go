package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP reads references that are URLs.
type HTTP struct {
	Client *http.Client
}

// NewHTTP creates an HTTP reader. A nil client gets a 30s timeout.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{Client: client}
}

// Read implements Reader.
func (h *HTTP) Read(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to load file %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("unable to load file %s: %w", url, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unable to load file %s: HTTP %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
