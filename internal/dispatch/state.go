// Package dispatch wires the HTTP surface: it routes each incoming request
// through the Router, resolves the routed model name to an ordered list of
// provider bindings, and tries each binding in turn until one succeeds
// (spec.md §4.5).
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/registry"
	"github.com/elidickinson/ccmux-go/internal/router"
	"github.com/elidickinson/ccmux-go/internal/tokenstore"
	"github.com/elidickinson/ccmux-go/internal/tracing"
)

// reloadable is the subset of application state rebuilt wholesale on every
// config reload: the parsed config, the compiled router, and the provider
// registry. Everything else on State survives a reload untouched.
type reloadable struct {
	config   *config.AppConfig
	router   *router.Router
	registry *registry.Registry
}

// State is the shared application state every handler closes over.
type State struct {
	mu     sync.RWMutex
	inner  *reloadable
	logger *zap.Logger

	ConfigPath string
	Tokens     *tokenstore.Store
	Tracer     *tracing.Tracer
}

// New builds the initial State from a loaded config, constructing the
// provider registry and compiling the router.
func New(ctx context.Context, cfg *config.AppConfig, configPath string, tokens *tokenstore.Store, logger *zap.Logger) (*State, error) {
	inner, err := buildReloadable(ctx, cfg, tokens, logger)
	if err != nil {
		return nil, err
	}
	return &State{
		inner:      inner,
		logger:     logger,
		ConfigPath: configPath,
		Tokens:     tokens,
		Tracer:     tracing.New(cfg.Server.Tracing, logger),
	}, nil
}

func buildReloadable(ctx context.Context, cfg *config.AppConfig, tokens *tokenstore.Store, logger *zap.Logger) (*reloadable, error) {
	reg, err := registry.FromConfig(ctx, cfg, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}
	return &reloadable{
		config:   cfg,
		router:   router.New(cfg, logger),
		registry: reg,
	}, nil
}

// snapshot returns the currently active reloadable state. Handlers must call
// this once per request and work from the returned value, never from State
// fields directly, so a concurrent reload cannot tear a single request
// across two configurations.
func (s *State) snapshot() *reloadable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inner
}

// Reload re-reads the config file, rebuilds the router and provider
// registry, and atomically swaps them in. The token store and message
// tracer are not reloaded.
func (s *State) Reload(ctx context.Context) error {
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	next, err := buildReloadable(ctx, cfg, s.Tokens, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.inner = next
	s.mu.Unlock()
	s.logger.Info("configuration reloaded")
	return nil
}

func (s *State) modelConfig(name string) (config.ModelConfig, bool) {
	inner := s.snapshot()
	for _, mc := range inner.config.Models {
		if strings.EqualFold(mc.Name, name) {
			return mc, true
		}
	}
	return config.ModelConfig{}, false
}
