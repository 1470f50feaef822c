// Package app wires the application dependencies together.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/solforge/rpc-router/config"
	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/providers/helius"
	"github.com/solforge/rpc-router/services/providers/jito"
	"github.com/solforge/rpc-router/services/providers/solanarpc"
	"github.com/solforge/rpc-router/services/router"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger
	Router *router.Router
}

// NewDependencies creates and wires up all application dependencies. The
// first probe cycle runs synchronously so routing starts with seeded health
// instead of waiting out the first interval.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	adapters, err := BuildAdapters(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider adapters: %w", err)
	}

	rt, err := router.New(cfg, adapters, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}

	rt.ProbeNow(ctx)

	logger.Info("all dependencies initialized",
		zap.Int("providers", len(adapters)))

	return &Dependencies{
		Config: cfg,
		Logger: logger,
		Router: rt,
	}, nil
}

// BuildAdapters constructs one adapter per configured provider, keyed by
// provider name
func BuildAdapters(cfg *config.Config) (map[string]providers.Adapter, error) {
	adapters := make(map[string]providers.Adapter, len(cfg.Providers))

	for name, providerCfg := range cfg.Providers {
		adapter, err := buildAdapter(name, providerCfg)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		adapters[name] = adapter
	}

	return adapters, nil
}

func buildAdapter(name string, providerCfg config.ProviderConfig) (providers.Adapter, error) {
	// Explicit feature lists narrow the adapter's advertised set
	var features providers.FeatureSet
	if len(providerCfg.Features) > 0 {
		parsed, err := providerCfg.FeatureSet()
		if err != nil {
			return nil, err
		}
		features = parsed
	}

	switch providerCfg.Kind {
	case "helius":
		return helius.New(helius.Options{
			Name:     name,
			Endpoint: providerCfg.Endpoint,
			APIKey:   providerCfg.APIKey,
			Timeout:  providerCfg.Timeout.Std(),
			Features: features,
		}), nil

	case "jito":
		return jito.New(jito.Options{
			Name:       name,
			Endpoint:   providerCfg.Endpoint,
			WSEndpoint: providerCfg.WSEndpoint,
			APIKey:     providerCfg.APIKey,
			Timeout:    providerCfg.Timeout.Std(),
			Features:   features,
		}), nil

	case "solana":
		return solanarpc.New(solanarpc.Options{
			Name:     name,
			Endpoint: providerCfg.Endpoint,
			Timeout:  providerCfg.Timeout.Std(),
		}), nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", providerCfg.Kind)
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	err := d.Router.Shutdown(ctx)

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return err
}
