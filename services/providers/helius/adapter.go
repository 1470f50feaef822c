// Package helius implements the adapter for Helius RPC endpoints.
package helius

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/providers/jsonrpc"
)

const (
	providerName   = "helius"
	defaultTimeout = 30 * time.Second

	// Method of the Helius priority-fee API
	feeEstimateMethod = "getPriorityFeeEstimate"
)

// Options configures the adapter
type Options struct {
	// Name distinguishes multiple Helius providers in one registry;
	// empty defaults to "helius"
	Name string

	// Endpoint is the Helius HTTP RPC URL
	Endpoint string

	// APIKey is appended as the api-key query parameter
	APIKey string

	// Timeout bounds each request
	Timeout time.Duration

	// Features overrides the advertised capability set; nil advertises
	// everything the backend supports
	Features providers.FeatureSet
}

// Adapter wraps a Helius endpoint. Beyond generic passthrough it exposes the
// priority-fee estimation API and a shredstream feed.
type Adapter struct {
	name     string
	client   *jsonrpc.Client
	features providers.FeatureSet
}

// New builds a Helius adapter
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
			providers.FeatureFeeEstimate,
			providers.FeatureShredstream,
		)
	}
	return &Adapter{
		name: opts.Name,
		client: jsonrpc.New(jsonrpc.Options{
			Provider: opts.Name,
			Endpoint: withAPIKey(opts.Endpoint, opts.APIKey),
			Timeout:  opts.Timeout,
		}),
		features: features,
	}
}

// withAPIKey appends the api-key query parameter Helius authenticates with
func withAPIKey(endpoint, apiKey string) string {
	if apiKey == "" {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set("api-key", apiKey)
	u.RawQuery = q.Encode()
	return u.String()
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.name
}

// Features returns the advertised capability set
func (a *Adapter) Features() providers.FeatureSet {
	return a.features
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

// feeRequest is the getPriorityFeeEstimate parameter shape
type feeRequest struct {
	Options feeOptions `json:"options"`
}

type feeOptions struct {
	PriorityLevel string `json:"priorityLevel"`
}

type feeResponse struct {
	PriorityFeeEstimate float64 `json:"priorityFeeEstimate"`
}

// priorityLevelFor maps urgency to the Helius priority level
func priorityLevelFor(urgency providers.Urgency) (level string, confidence float64) {
	switch urgency {
	case providers.UrgencyHigh:
		return "High", 0.85
	case providers.UrgencyMEV:
		return "VeryHigh", 0.75
	default:
		return "Medium", 0.9
	}
}

// EstimateFee queries the Helius priority-fee API for the given urgency
func (a *Adapter) EstimateFee(ctx context.Context, urgency providers.Urgency) (*providers.FeeEstimate, error) {
	level, confidence := priorityLevelFor(urgency)

	params, err := json.Marshal([]feeRequest{{Options: feeOptions{PriorityLevel: level}}})
	if err != nil {
		return nil, providers.NewProviderError(a.name, 0, "failed to marshal fee request", err)
	}

	result, err := a.client.Call(ctx, feeEstimateMethod, params)
	if err != nil {
		return nil, err
	}

	var resp feeResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, providers.NewProviderError(a.name, 0, "failed to unmarshal fee response", err)
	}

	return &providers.FeeEstimate{
		Fee:        resp.PriorityFeeEstimate,
		Unit:       "microlamports",
		Confidence: confidence,
		Provider:   a.name,
	}, nil
}
