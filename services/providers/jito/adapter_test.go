package jito

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/providers/jsonrpc"
)

func TestNewAdvertisesBundleFeatures(t *testing.T) {
	a := New(Options{Endpoint: "https://mainnet.block-engine.jito.wtf"})

	assert.Equal(t, "jito", a.Name())
	assert.True(t, a.Features().Has(providers.FeatureBundles))
	assert.True(t, a.Features().Has(providers.FeatureShredstream))
	assert.True(t, a.Features().Has(providers.FeatureRawCall))
	assert.False(t, a.Features().Has(providers.FeatureFeeEstimate))
}

func TestSubmitBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("x-jito-auth"))

		body, _ := io.ReadAll(r.Body)
		var req jsonrpc.Request
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "sendBundle", req.Method)

		var params [][]string
		require.NoError(t, json.Unmarshal(req.Params, &params))
		require.Len(t, params, 1)
		assert.Equal(t, []string{"dHgx", "dHgy"}, params[0])

		json.NewEncoder(w).Encode(jsonrpc.Response{
			ID:     req.ID,
			Result: json.RawMessage(`"bundle-abc"`),
		})
	}))
	defer server.Close()

	a := New(Options{Endpoint: server.URL, APIKey: "key-123", Timeout: 2 * time.Second})
	defer a.Close()

	result, err := a.SubmitBundle(context.Background(), &providers.BundleRequest{
		Transactions: []string{"dHgx", "dHgy"},
		Urgency:      providers.UrgencyMEV,
	})

	require.NoError(t, err)
	assert.Equal(t, "bundle-abc", result.BundleID)
	assert.Equal(t, "jito", result.Provider)
	assert.True(t, result.Success)
}

func TestSubmitBundleRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jsonrpc.Response{
			Error: &jsonrpc.Error{Code: -32602, Message: "bundle simulation failed"},
		})
	}))
	defer server.Close()

	a := New(Options{Endpoint: server.URL})
	defer a.Close()

	_, err := a.SubmitBundle(context.Background(), &providers.BundleRequest{
		Transactions: []string{"dHgx"},
	})

	require.Error(t, err)
	var provErr *providers.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, -32602, provErr.Code)
}

func TestProbeHTTPOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req jsonrpc.Request
		json.Unmarshal(body, &req)
		assert.Equal(t, "getTipAccounts", req.Method)
		json.NewEncoder(w).Encode(jsonrpc.Response{ID: req.ID, Result: json.RawMessage(`[]`)})
	}))
	defer server.Close()

	a := New(Options{Endpoint: server.URL})
	defer a.Close()

	latency, err := a.Probe(context.Background())

	require.NoError(t, err)
	assert.Greater(t, latency, time.Duration(0))
}

func TestProbeIncludesShredstream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var wsDialed atomic.Bool
	wsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsDialed.Store(true)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer wsServer.Close()

	rpcServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jsonrpc.Response{Result: json.RawMessage(`[]`)})
	}))
	defer rpcServer.Close()

	a := New(Options{
		Endpoint:   rpcServer.URL,
		WSEndpoint: "ws" + strings.TrimPrefix(wsServer.URL, "http"),
	})
	defer a.Close()

	_, err := a.Probe(context.Background())

	require.NoError(t, err)
	assert.True(t, wsDialed.Load(), "shredstream endpoint dialed during probe")
}

func TestProbeFailsWhenShredstreamDown(t *testing.T) {
	rpcServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jsonrpc.Response{Result: json.RawMessage(`[]`)})
	}))
	defer rpcServer.Close()

	// Plain HTTP handler refuses the websocket upgrade
	deadServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer deadServer.Close()

	a := New(Options{
		Endpoint:   rpcServer.URL,
		WSEndpoint: "ws" + strings.TrimPrefix(deadServer.URL, "http"),
	})
	defer a.Close()

	_, err := a.Probe(context.Background())
	require.Error(t, err)
}
