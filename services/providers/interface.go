package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"
)

// Feature identifies an optional capability a provider may support
type Feature string

const (
	// FeatureRawCall is generic JSON-RPC passthrough; every adapter supports it
	FeatureRawCall Feature = "raw_call"

	// FeatureBundles is atomic bundle submission
	FeatureBundles Feature = "bundles"

	// FeatureFeeEstimate is priority-fee estimation
	FeatureFeeEstimate Feature = "fee_estimate"

	// FeatureShredstream is the low-latency shred feed, preferred for
	// MEV-urgent bundle submissions
	FeatureShredstream Feature = "shredstream"
)

// FeatureSet is the set of features a provider advertises
type FeatureSet map[Feature]bool

// Has reports whether the set contains a feature
func (fs FeatureSet) Has(f Feature) bool {
	return fs[f]
}

// NewFeatureSet builds a set from a feature list
func NewFeatureSet(features ...Feature) FeatureSet {
	fs := make(FeatureSet, len(features))
	for _, f := range features {
		fs[f] = true
	}
	return fs
}

// ParseFeature validates a feature name from configuration
func ParseFeature(s string) (Feature, error) {
	switch Feature(s) {
	case FeatureRawCall, FeatureBundles, FeatureFeeEstimate, FeatureShredstream:
		return Feature(s), nil
	default:
		return "", errors.New("unknown feature: " + s)
	}
}

// Urgency classifies how aggressively a submission should be placed
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyMEV    Urgency = "mev"
)

// ParseUrgency validates an urgency value from a request
func ParseUrgency(s string) (Urgency, error) {
	switch Urgency(s) {
	case UrgencyNormal, UrgencyHigh, UrgencyMEV:
		return Urgency(s), nil
	case "":
		return UrgencyNormal, nil
	default:
		return "", errors.New("unknown urgency: " + s)
	}
}

// Adapter is the uniform interface wrapping one upstream RPC backend.
// Adapters are stateless; all mutable routing state (health, latency,
// circuit) lives on the registry entry that references the adapter.
type Adapter interface {
	// Name returns the provider name (e.g. "helius", "jito")
	Name() string

	// Features returns the capabilities this adapter supports
	Features() FeatureSet

	// Invoke performs a generic JSON-RPC call. The context carries the
	// caller-supplied deadline; exceeding it yields a timeout error
	// attributed to this provider.
	Invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)

	// Probe performs a cheap liveness check and returns its round-trip time
	Probe(ctx context.Context) (time.Duration, error)

	// Close releases any connections held by the adapter
	Close() error
}

// BundleCapable is implemented by adapters that advertise FeatureBundles
type BundleCapable interface {
	Adapter

	// SubmitBundle submits an atomic transaction bundle
	SubmitBundle(ctx context.Context, req *BundleRequest) (*BundleResult, error)
}

// FeeCapable is implemented by adapters that advertise FeatureFeeEstimate
type FeeCapable interface {
	Adapter

	// EstimateFee returns a priority-fee estimate for the given urgency
	EstimateFee(ctx context.Context, urgency Urgency) (*FeeEstimate, error)
}

// BundleRequest carries opaque transaction payloads for atomic submission.
// The router never inspects the payload bytes.
type BundleRequest struct {
	// Transactions are base64-encoded signed transactions
	Transactions []string `json:"transactions"`

	// Urgency classifies placement aggressiveness
	Urgency Urgency `json:"urgency,omitempty"`
}

// BundleResult describes an accepted bundle submission
type BundleResult struct {
	// BundleID is the accepted bundle identifier
	BundleID string `json:"bundle_id"`

	// Provider that accepted the bundle
	Provider string `json:"provider"`

	// Success reports whether the submission was accepted
	Success bool `json:"success"`

	// Latency of the submission round trip
	Latency time.Duration `json:"latency"`
}

// FeeEstimate is a single-source priority-fee estimate
type FeeEstimate struct {
	// Fee is the estimated priority fee
	Fee float64 `json:"fee"`

	// Unit of the fee value
	Unit string `json:"unit"`

	// Confidence in [0, 1] supplied by the adapter
	Confidence float64 `json:"confidence"`

	// Provider that produced the estimate
	Provider string `json:"provider"`
}

// ProviderError represents an error reported by an upstream backend
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the backend error code, when one was reported
	Code int

	// Message is the error message
	Message string

	// Timeout marks the attempt as having exceeded its deadline rather
	// than being rejected by the backend
	Timeout bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider string, code int, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// NewTimeoutError creates a provider error marking a deadline overrun
func NewTimeoutError(provider, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Timeout:  true,
		Cause:    cause,
	}
}

// IsTimeout reports whether an error represents a deadline overrun rather
// than a backend-reported failure
func IsTimeout(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.Timeout {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
