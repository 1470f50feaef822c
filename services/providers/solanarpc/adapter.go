// Package solanarpc implements the adapter for vanilla Solana JSON-RPC nodes.
package solanarpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/providers/jsonrpc"
)

const defaultTimeout = 30 * time.Second

// Options configures the adapter
type Options struct {
	// Name distinguishes multiple vanilla nodes in one registry
	Name string

	// Endpoint is the HTTP JSON-RPC URL
	Endpoint string

	// Timeout bounds each request
	Timeout time.Duration
}

// Adapter wraps a plain Solana RPC node. It only supports generic
// passthrough; bundle and fee capabilities live on the specialized backends.
type Adapter struct {
	name   string
	client *jsonrpc.Client
}

// New builds an adapter for one vanilla node
func New(opts Options) *Adapter {
	if opts.Name == "" {
		opts.Name = "solana"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Adapter{
		name: opts.Name,
		client: jsonrpc.New(jsonrpc.Options{
			Provider: opts.Name,
			Endpoint: opts.Endpoint,
			Timeout:  opts.Timeout,
		}),
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.name
}

// Features returns the capability set; vanilla nodes only do raw calls
func (a *Adapter) Features() providers.FeatureSet {
	return providers.NewFeatureSet(providers.FeatureRawCall)
}

// Invoke performs a generic JSON-RPC call
func (a *Adapter) Invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	return a.client.Call(ctx, method, params)
}

// Probe checks liveness with getHealth and returns the round-trip time
func (a *Adapter) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := a.client.Call(ctx, "getHealth", nil); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Close releases pooled connections
func (a *Adapter) Close() error {
	return a.client.Close()
}
