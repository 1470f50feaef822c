package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solforge/rpc-router/services"
	"github.com/solforge/rpc-router/services/metrics"
	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/router"
)

// fakeRouter is a scriptable RouterService for handler tests
type fakeRouter struct {
	callResult   json.RawMessage
	callErr      error
	calledMethod string
	calledParams json.RawMessage

	bundleResult *providers.BundleResult
	bundleErr    error
	bundleReq    *providers.BundleRequest

	feeResult  *providers.FeeEstimate
	feeErr     error
	feeUrgency providers.Urgency

	health  router.HealthReport
	metrics metrics.Snapshot
}

func (f *fakeRouter) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	f.calledMethod = method
	f.calledParams = params
	return f.callResult, f.callErr
}

func (f *fakeRouter) SubmitBundle(ctx context.Context, req *providers.BundleRequest) (*providers.BundleResult, error) {
	f.bundleReq = req
	return f.bundleResult, f.bundleErr
}

func (f *fakeRouter) GetPriorityFeeEstimate(ctx context.Context, urgency providers.Urgency) (*providers.FeeEstimate, error) {
	f.feeUrgency = urgency
	return f.feeResult, f.feeErr
}

func (f *fakeRouter) Health() router.HealthReport {
	return f.health
}

func (f *fakeRouter) Metrics() metrics.Snapshot {
	return f.metrics
}

func TestRPCHandlerSuccess(t *testing.T) {
	fake := &fakeRouter{callResult: json.RawMessage(`12345`)}
	h := NewRPCHandler(fake, zap.NewNop())

	body := `{"jsonrpc":"2.0","id":1,"method":"getSlot","params":[]}`
	rec := httptest.NewRecorder()
	h.HandleCall(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rpc", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "getSlot", fake.calledMethod)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.JSONEq(t, `1`, string(resp.ID))
	assert.JSONEq(t, `12345`, string(resp.Result))
}

func TestRPCHandlerRejectsMissingMethod(t *testing.T) {
	h := NewRPCHandler(&fakeRouter{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleCall(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRPCHandlerRejectsBadJSON(t *testing.T) {
	h := NewRPCHandler(&fakeRouter{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleCall(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rpc", strings.NewReader(`{broken`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRPCHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no capable provider", services.ErrNoCapableProvider, http.StatusNotImplemented},
		{"all exhausted", services.ErrAllProvidersExhausted, http.StatusBadGateway},
		{"provider failure", services.NewProviderFailure("helius", nil), http.StatusBadGateway},
		{"timeout", services.NewTimeoutError("helius", nil), http.StatusGatewayTimeout},
		{"circuit open", services.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"router closed", services.ErrRouterClosed, http.StatusServiceUnavailable},
		{"config", services.ErrConfig, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRPCHandler(&fakeRouter{callErr: tt.err}, zap.NewNop())

			rec := httptest.NewRecorder()
			h.HandleCall(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rpc",
				strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"getSlot"}`)))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestBundleHandlerSuccess(t *testing.T) {
	fake := &fakeRouter{
		bundleResult: &providers.BundleResult{BundleID: "b-1", Provider: "jito", Success: true},
	}
	h := NewBundleHandler(fake, zap.NewNop())

	body := `{"transactions":["dHgx"],"urgency":"mev"}`
	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bundles", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fake.bundleReq)
	assert.Equal(t, providers.UrgencyMEV, fake.bundleReq.Urgency)
	assert.Contains(t, rec.Body.String(), `"bundle_id":"b-1"`)
}

func TestBundleHandlerValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty transactions", `{"transactions":[]}`},
		{"missing transactions", `{}`},
		{"unknown urgency", `{"transactions":["dHgx"],"urgency":"yesterday"}`},
		{"bad json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRouter{}
			h := NewBundleHandler(fake, zap.NewNop())

			rec := httptest.NewRecorder()
			h.HandleSubmit(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bundles", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, fake.bundleReq, "router not contacted")
		})
	}
}

func TestFeeHandlerSuccess(t *testing.T) {
	fake := &fakeRouter{
		feeResult: &providers.FeeEstimate{Fee: 4200, Unit: "microlamports", Confidence: 0.85, Provider: "helius"},
	}
	h := NewFeeHandler(fake, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleEstimate(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fees?urgency=high", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, providers.UrgencyHigh, fake.feeUrgency)
	assert.Contains(t, rec.Body.String(), `"fee":4200`)
}

func TestFeeHandlerDefaultUrgency(t *testing.T) {
	fake := &fakeRouter{feeResult: &providers.FeeEstimate{Fee: 1}}
	h := NewFeeHandler(fake, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleEstimate(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fees", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, providers.UrgencyNormal, fake.feeUrgency)
}

func TestFeeHandlerInvalidUrgency(t *testing.T) {
	h := NewFeeHandler(&fakeRouter{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleEstimate(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fees?urgency=never", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandlerLiveness(t *testing.T) {
	h := NewHealthHandler(&fakeRouter{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestHealthHandlerReadiness(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		fake := &fakeRouter{health: router.HealthReport{Healthy: true, State: "ready", HealthyProviders: 2, TotalProviders: 3}}
		h := NewHealthHandler(fake, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("degraded", func(t *testing.T) {
		fake := &fakeRouter{health: router.HealthReport{Healthy: false, State: "degraded"}}
		h := NewHealthHandler(fake, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"degraded"`)
	})
}

func TestHealthHandlerMetricsSnapshot(t *testing.T) {
	fake := &fakeRouter{metrics: metrics.Snapshot{TotalRequests: 7, SuccessRate: 0.5}}
	h := NewHealthHandler(fake, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_requests":7`)
}
