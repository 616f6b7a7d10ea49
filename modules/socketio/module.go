// Package socketio provides the 'socketio' job runner: it connects to a
// socket.io endpoint, optionally emits an event, and waits for a response
// event within a timeout.
package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/asyncgridgo/internal/ctxlog"
	"github.com/vk/asyncgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the socketio runner. EmitData is kept as a
// cty.Value so the grid can pass payloads of any shape.
type Input struct {
	URL                string    `hcl:"url"`
	Namespace          string    `hcl:"namespace,optional"`
	OnEvent            string    `hcl:"on_event"`
	EmitEvent          string    `hcl:"emit_event,optional"`
	EmitData           cty.Value `hcl:"emit_data,optional"`
	Timeout            string    `hcl:"timeout,optional"`
	InsecureSkipVerify bool      `hcl:"insecure_skip_verify,optional"`
}

// OnRunSocketIO is the handler for the 'socketio' runner.
func OnRunSocketIO(ctx context.Context, input any) error {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx).With("runner", "socketio", "url", in.URL, "onEvent", in.OnEvent, "emitEvent", in.EmitEvent)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	var isConnected atomic.Bool

	timeout := 10 * time.Second
	if in.Timeout != "" {
		parsed, err := time.ParseDuration(in.Timeout)
		if err != nil {
			logger.Warn("Failed to parse timeout, using default 10s", "inputTimeout", in.Timeout, "error", err)
		} else {
			timeout = parsed
		}
	}

	payload, err := ctyValueToInterface(in.EmitData)
	if err != nil {
		return fmt.Errorf("failed to convert emit_data: %w", err)
	}

	done := make(chan error, 1)
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parsedURL, err := url.Parse(in.URL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)

	if in.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(in.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Successfully connected", "namespace", in.Namespace, "sid", io.Id())
		if in.EmitEvent != "" {
			jsonData, _ := json.Marshal(payload)
			logger.Info("Emitting event", "event", in.EmitEvent, "data", string(jsonData))
			io.Emit(in.EmitEvent, payload)
		}
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				done <- err
				return
			}
		}
		done <- fmt.Errorf("socket.io connection error")
	})

	io.On(types.EventName(in.OnEvent), func(data ...any) {
		logger.Info("Received response event", "event", in.OnEvent, "args", len(data))
		done <- nil
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			return fmt.Errorf("timed out after connecting while waiting for event '%s'", in.OnEvent)
		}
		return fmt.Errorf("timed out while waiting for initial connection")
	case err := <-done:
		return err
	}
}

// ctyValueToInterface converts a cty.Value into plain Go values suitable for
// a socket.io payload.
func ctyValueToInterface(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			conv, err := ctyValueToInterface(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			conv, err := ctyValueToInterface(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = conv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported emit_data type: %s", ty.FriendlyName())
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("socketio", &registry.Runner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunSocketIO,
	})
}
