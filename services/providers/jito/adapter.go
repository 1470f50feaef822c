// Package jito implements the adapter for Jito block-engine endpoints.
package jito

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/providers/jsonrpc"
)

const (
	providerName   = "jito"
	defaultTimeout = 30 * time.Second

	// Auth header the block engine accepts
	authHeader = "x-jito-auth"

	sendBundleMethod = "sendBundle"
	probeMethod      = "getTipAccounts"
)

// Options configures the adapter
type Options struct {
	// Name distinguishes multiple block-engine providers in one registry;
	// empty defaults to "jito"
	Name string

	// Endpoint is the block-engine HTTP JSON-RPC URL
	Endpoint string

	// WSEndpoint is the shredstream websocket URL; empty skips the
	// websocket leg of health probes
	WSEndpoint string

	// APIKey is sent in the x-jito-auth header
	APIKey string

	// Timeout bounds each request
	Timeout time.Duration

	// Features overrides the advertised capability set
	Features providers.FeatureSet
}

// Adapter wraps a Jito block engine. Its primary capability is atomic bundle
// submission; when a shredstream websocket endpoint is configured, health
// probes also verify the feed is reachable.
type Adapter struct {
	name       string
	client     *jsonrpc.Client
	wsEndpoint string
	wsHeaders  map[string][]string
	features   providers.FeatureSet
}

// New builds a Jito adapter
func New(opts Options) *Adapter {
	if opts.Name == "" {
		opts.Name = providerName
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	features := opts.Features
	if features == nil {
		features = providers.NewFeatureSet(
			providers.FeatureRawCall,
			providers.FeatureBundles,
			providers.FeatureShredstream,
		)
	}

	headers := map[string]string{}
	wsHeaders := map[string][]string{}
	if opts.APIKey != "" {
		headers[authHeader] = opts.APIKey
		wsHeaders[authHeader] = []string{opts.APIKey}
	}

	return &Adapter{
		name: opts.Name,
		client: jsonrpc.New(jsonrpc.Options{
			Provider: opts.Name,
			Endpoint: opts.Endpoint,
			Headers:  headers,
			Timeout:  opts.Timeout,
		}),
		wsEndpoint: opts.WSEndpoint,
		wsHeaders:  wsHeaders,
		features:   features,
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.name
}

// Features returns the advertised capability set
func (a *Adapter) Features() providers.FeatureSet {
	return a.features
}

// Invoke performs a generic JSON-RPC call against the block engine
func (a *Adapter) Invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	return a.client.Call(ctx, method, params)
}

// SubmitBundle submits an atomic transaction bundle. The backend returns the
// bundle identifier on acceptance; partial landing is not possible.
func (a *Adapter) SubmitBundle(ctx context.Context, req *providers.BundleRequest) (*providers.BundleResult, error) {
	params, err := json.Marshal([][]string{req.Transactions})
	if err != nil {
		return nil, providers.NewProviderError(a.name, 0, "failed to marshal bundle", err)
	}

	result, err := a.client.Call(ctx, sendBundleMethod, params)
	if err != nil {
		return nil, err
	}

	var bundleID string
	if err := json.Unmarshal(result, &bundleID); err != nil {
		return nil, providers.NewProviderError(a.name, 0, "failed to unmarshal bundle id", err)
	}

	return &providers.BundleResult{
		BundleID: bundleID,
		Provider: a.name,
		Success:  true,
	}, nil
}

// Probe checks block-engine liveness and, when a shredstream endpoint is
// configured, that the websocket feed accepts connections. The returned
// latency covers both legs.
func (a *Adapter) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	if _, err := a.client.Call(ctx, probeMethod, nil); err != nil {
		return 0, err
	}

	if a.wsEndpoint != "" {
		if err := a.probeShredstream(ctx); err != nil {
			return 0, err
		}
	}

	return time.Since(start), nil
}

// probeShredstream dials the feed and immediately closes the connection
func (a *Adapter) probeShredstream(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, a.wsEndpoint, a.wsHeaders)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if providers.IsTimeout(err) {
			return providers.NewTimeoutError(a.name, "shredstream dial deadline exceeded", err)
		}
		return providers.NewProviderError(a.name, 0, "shredstream dial failed", err)
	}
	return conn.Close()
}

// Close releases pooled connections
func (a *Adapter) Close() error {
	return a.client.Close()
}
