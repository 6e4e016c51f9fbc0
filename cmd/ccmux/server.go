package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/dispatch"
	"github.com/elidickinson/ccmux-go/internal/server"
	"github.com/elidickinson/ccmux-go/internal/tokenstore"
)

// oauthCallbackAddr is fixed by OpenAI's Codex OAuth app, which only
// accepts a redirect URI of exactly this address (spec.md §6).
const oauthCallbackAddr = "127.0.0.1:1455"

// gatewayServer owns the gateway's two listeners: the main completions/admin
// server and the OAuth-callback-only server on oauthCallbackAddr. Both are
// started and stopped together.
type gatewayServer struct {
	cfg        *config.AppConfig
	configPath string
	logger     *zap.Logger

	state *dispatch.State

	main  *server.Manager
	oauth *server.Manager
}

func newGatewayServer(cfg *config.AppConfig, configPath string, logger *zap.Logger) (*gatewayServer, error) {
	tokenPath, err := tokenstore.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("resolve token store path: %w", err)
	}
	tokens, err := tokenstore.New(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	state, err := dispatch.New(context.Background(), cfg, configPath, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("build dispatch state: %w", err)
	}

	return &gatewayServer{cfg: cfg, configPath: configPath, logger: logger, state: state}, nil
}

// Start binds and serves both listeners. It returns once both are listening;
// a bind failure on the main listener is fatal, a bind failure on the OAuth
// callback listener is logged and otherwise ignored (spec.md §6).
func (s *gatewayServer) Start() error {
	mainMux := http.NewServeMux()
	s.state.RegisterRoutes(mainMux)

	mainCfg := server.DefaultConfig()
	mainCfg.Addr = fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	mainCfg.WriteTimeout = 0 // streaming responses must not be cut off
	s.main = server.NewManager(mainMux, mainCfg, s.logger)
	if err := s.main.Start(); err != nil {
		return fmt.Errorf("start main listener: %w", err)
	}
	s.logger.Info("gateway listening", zap.String("addr", mainCfg.Addr))

	oauthMux := http.NewServeMux()
	s.state.RegisterOAuthCallbackRoute(oauthMux)

	oauthCfg := server.DefaultConfig()
	oauthCfg.Addr = oauthCallbackAddr
	s.oauth = server.NewManager(oauthMux, oauthCfg, s.logger)
	if err := s.oauth.Start(); err != nil {
		s.logger.Warn("OAuth callback listener failed to bind; OpenAI Codex OAuth will not work",
			zap.String("addr", oauthCallbackAddr), zap.Error(err))
		s.oauth = nil
	} else {
		s.logger.Info("OAuth callback listener started", zap.String("addr", oauthCallbackAddr))
	}

	return nil
}

// Run blocks until ctx is canceled or either listener reports an
// asynchronous error, then shuts both down.
func (s *gatewayServer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-s.main.Errors():
			return err
		}
	})
	if s.oauth != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err := <-s.oauth.Errors():
				return err
			}
		})
	}

	runErr := g.Wait()

	shutdownCtx := context.Background()
	if err := s.main.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("main listener shutdown error", zap.Error(err))
	}
	if s.oauth != nil {
		if err := s.oauth.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("OAuth callback listener shutdown error", zap.Error(err))
		}
	}

	return runErr
}
