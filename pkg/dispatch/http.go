// Package dispatch provides the outbound call primitive used by
// module-call actions: a JSON-over-HTTP dispatcher that treats resolved
// module addresses as base URLs.
package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPDispatcher performs module calls as HTTP POSTs against the target
// module's address.
type HTTPDispatcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPDispatcher creates a dispatcher with the given timeout.
func NewHTTPDispatcher(timeout time.Duration, logger *slog.Logger) *HTTPDispatcher {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &HTTPDispatcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Call posts args to target/method and returns the response body. Any
// non-2xx status is reported as a failed call.
func (d *HTTPDispatcher) Call(target, method string, args []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", target, method)
	resp, err := d.client.Post(url, "application/json", bytes.NewReader(args))
	if err != nil {
		return nil, fmt.Errorf("call to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("call to %s returned status %d", url, resp.StatusCode)
	}

	d.logger.Debug("module call dispatched", "url", url, "status", resp.StatusCode)
	return body, nil
}
