// Package http_request provides the 'http_request' job runner: it performs a
// single HTTP request and fails the job on an unexpected status.
package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/vk/asyncgridgo/internal/ctxlog"
	"github.com/vk/asyncgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// httpClient is shared across runner executions to reuse TCP connections.
var httpClient = &http.Client{}

// Input defines the arguments for the http_request runner.
type Input struct {
	URL          string `hcl:"url"`
	Method       string `hcl:"method,optional"`
	ExpectStatus int    `hcl:"expect_status,optional"`
}

// OnRunHTTPRequest is the handler for the 'http_request' runner.
func OnRunHTTPRequest(ctx context.Context, input any) error {
	in := input.(*Input)
	method := in.Method
	if method == "" {
		method = http.MethodGet
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", method, "url", in.URL)

	req, err := http.NewRequestWithContext(ctx, method, in.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	logger.Info("Received HTTP response", "status", resp.Status)

	if in.ExpectStatus != 0 {
		if resp.StatusCode != in.ExpectStatus {
			return fmt.Errorf("unexpected status %d, want %d", resp.StatusCode, in.ExpectStatus)
		}
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %s", resp.Status)
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("http_request", &registry.Runner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunHTTPRequest,
	})
}
