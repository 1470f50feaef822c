// Package jsonrpc implements the JSON-RPC 2.0 HTTP client shared by the
// provider adapters.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/solforge/rpc-router/services/providers"
)

const defaultTimeout = 30 * time.Second

// Request is a JSON-RPC 2.0 request envelope
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client issues JSON-RPC calls against one backend endpoint. It is safe for
// concurrent use.
type Client struct {
	provider   string
	endpoint   string
	headers    map[string]string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// Options configures a client
type Options struct {
	// Provider name used to attribute errors
	Provider string

	// Endpoint is the HTTP JSON-RPC URL
	Endpoint string

	// Headers are added to every request
	Headers map[string]string

	// Timeout bounds each request when the context carries no deadline
	Timeout time.Duration
}

// New builds a client for one backend
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Client{
		provider: opts.Provider,
		endpoint: opts.Endpoint,
		headers:  opts.Headers,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Endpoint returns the configured URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call issues one JSON-RPC request and returns the raw result bytes.
// Backend-reported errors come back as ProviderError with the JSON-RPC error
// code; transport deadline overruns come back marked as timeouts.
func (c *Client) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	req := Request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, providers.NewProviderError(c.provider, 0, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(c.provider, 0, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, providers.NewTimeoutError(c.provider, "request deadline exceeded", err)
		}
		return nil, providers.NewProviderError(c.provider, 0, "http request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(c.provider, httpResp.StatusCode, "failed to read response", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, providers.NewProviderError(c.provider, httpResp.StatusCode, "unexpected status "+httpResp.Status, nil)
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, providers.NewProviderError(c.provider, httpResp.StatusCode, "failed to unmarshal response", err)
	}
	if rpcResp.Error != nil {
		return nil, providers.NewProviderError(c.provider, rpcResp.Error.Code, rpcResp.Error.Message, nil)
	}

	return rpcResp.Result, nil
}

// Close releases pooled connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
