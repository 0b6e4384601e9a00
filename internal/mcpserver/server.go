// Package mcpserver exposes an Unraid server as MCP tools and resources:
// system and array inspection, Docker and VM listings, notifications,
// rclone remotes, raw GraphQL access, and live log streaming backed by
// GraphQL subscriptions.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nkissick-del/unraid-mcp/internal/config"
	"github.com/nkissick-del/unraid-mcp/internal/graphql"
	"github.com/nkissick-del/unraid-mcp/internal/subscribe"
)

const shutdownGrace = 10 * time.Second

// Server exposes Unraid capabilities as MCP tools/resources.
type Server struct {
	server  *mcp.Server
	gql     *graphql.Client
	sub     *subscribe.Client
	cfg     config.Config
	logger  *zap.Logger
	version string
}

// New creates and wires the MCP server surface for Unraid.
func New(cfg config.Config, gql *graphql.Client, sub *subscribe.Client, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if version == "" {
		version = "dev"
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "unraid-mcp",
		Version: version,
	}, nil)

	s := &Server{
		server:  srv,
		gql:     gql,
		sub:     sub,
		cfg:     cfg,
		logger:  logger.Named("mcp"),
		version: version,
	}

	s.registerTools()
	s.registerResources()

	return s
}

// Run serves MCP over the configured transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Transport {
	case config.TransportStdio:
		s.logger.Info("serving MCP over stdio")
		return s.server.Run(ctx, &mcp.StdioTransport{})
	case config.TransportSSE:
		handler := mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server {
			return s.server
		}, nil)
		return s.serveHTTP(ctx, "/mcp", handler)
	case config.TransportStreamableHTTP:
		handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
			return s.server
		}, nil)
		return s.serveHTTP(ctx, "/mcp", handler)
	default:
		return fmt.Errorf("unknown transport %q", s.cfg.Transport)
	}
}

func (s *Server) serveHTTP(ctx context.Context, mountPath string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle(mountPath, handler)
	mux.Handle(mountPath+"/", handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("serving MCP over HTTP",
			zap.String("addr", srv.Addr),
			zap.String("path", mountPath),
			zap.String("transport", s.cfg.Transport),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	health := s.sub.Health()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"version":      s.version,
		"subscription": health.State.String(),
	})
}
