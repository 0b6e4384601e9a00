// Unraid MCP server — exposes an Unraid server to MCP clients over stdio,
// SSE, or streamable HTTP, with live log streaming over GraphQL subscriptions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nkissick-del/unraid-mcp/internal/config"
	"github.com/nkissick-del/unraid-mcp/internal/graphql"
	"github.com/nkissick-del/unraid-mcp/internal/logging"
	"github.com/nkissick-del/unraid-mcp/internal/mcpserver"
	"github.com/nkissick-del/unraid-mcp/internal/subscribe"
	"github.com/nkissick-del/unraid-mcp/internal/telemetry"
)

var (
	version string
	commit  string
)

func init() {
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// No subcommand means run: MCP clients exec the binary directly.
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = cmdRun(ctx, args)
	case "check":
		err = cmdCheck(ctx, args)
	case "version":
		fmt.Printf("unraid-mcp %s (commit: %s)\n", version, commit)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: unraid-mcp [command]

Commands:
  run        Start the MCP server (default when no command is given)
  check      Verify API connectivity and the subscription channel, then exit
  version    Print version information
  help       Show this help

Flags:
  --config <path>   Config file (default $UNRAID_MCP_CONFIG, else env-only)

Configuration comes from the optional YAML file overlaid with UNRAID_*
environment variables; UNRAID_API_URL and UNRAID_API_KEY are required.`)
}

// parseConfigPath extracts --config from args, falling back to the
// UNRAID_MCP_CONFIG environment variable.
func parseConfigPath(args []string) string {
	for i := 0; i < len(args); i++ {
		if (args[i] == "--config" || args[i] == "-c") && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(args[i], "--config="); ok {
			return v
		}
	}
	return strings.TrimSpace(os.Getenv("UNRAID_MCP_CONFIG"))
}

func loadConfig(args []string) (config.Config, error) {
	cfg, err := config.Load(parseConfigPath(args))
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newSubscribeClient(cfg config.Config, logger *zap.Logger) (*subscribe.Client, error) {
	wsEndpoint := cfg.WebSocketEndpoint()
	return subscribe.New(subscribe.Config{
		Endpoint:         wsEndpoint,
		APIKey:           cfg.APIKey,
		InsecureTLS:      !cfg.VerifySSL,
		DialTimeout:      cfg.Timeouts.Connect(),
		HandshakeTimeout: cfg.Subscriptions.HandshakeTimeout(),
		KeepAlive:        cfg.Subscriptions.KeepAlive(),
		PongWait:         cfg.Subscriptions.PongWait(),
		MaxRetries:       cfg.Subscriptions.MaxRetries,
		Backoff: subscribe.BackoffConfig{
			Initial:    cfg.Subscriptions.BackoffInitial(),
			Max:        cfg.Subscriptions.BackoffMax(),
			Multiplier: cfg.Subscriptions.BackoffMultiplier,
			Jitter:     cfg.Subscriptions.BackoffJitter,
		},
		QueueSize:   cfg.Subscriptions.QueueSize,
		Resubscribe: cfg.Subscriptions.Resubscribe,
	}, logger), nil
}

func newGraphQLClient(cfg config.Config, logger *zap.Logger) (*graphql.Client, error) {
	endpoint := cfg.GraphQLEndpoint()
	return graphql.New(graphql.Options{
		Endpoint:       endpoint,
		APIKey:         cfg.APIKey,
		VerifySSL:      cfg.VerifySSL,
		RequestTimeout: cfg.Timeouts.Request(),
		UserAgent:      "unraid-mcp/" + version,
	}, logger), nil
}

func cmdRun(ctx context.Context, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := telemetry.InitTraceProvider(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	gql, err := newGraphQLClient(cfg, logger)
	if err != nil {
		return err
	}
	sub, err := newSubscribeClient(cfg, logger)
	if err != nil {
		return err
	}
	defer sub.Close()

	logger.Info("starting unraid-mcp",
		zap.String("version", version),
		zap.String("transport", cfg.Transport),
		zap.String("api", gql.Endpoint()),
	)

	return mcpserver.New(cfg, gql, sub, version, logger).Run(ctx)
}

const connectivityQuery = `
query ConnectivityCheck {
  info { machineId time }
}`

func cmdCheck(ctx context.Context, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger, err := logging.New("error", "")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gql, err := newGraphQLClient(cfg, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Checking %s...\n", gql.Endpoint())
	if _, err := gql.Query(ctx, connectivityQuery, nil); err != nil {
		return fmt.Errorf("api check: %w", err)
	}
	fmt.Println("✅ GraphQL API reachable")

	sub, err := newSubscribeClient(cfg, logger)
	if err != nil {
		return err
	}
	defer sub.Close()

	report := sub.TestSubscription(ctx, "", nil, 15*time.Second)
	switch {
	case report.GotEvent:
		fmt.Printf("✅ Subscription channel live (first event in %dms)\n", report.TimeToFirstEventMS)
	case report.HandshakeOK:
		fmt.Printf("✅ Subscription handshake OK (no event within the probe window: %s)\n", report.Error)
	default:
		return fmt.Errorf("subscription check: %s", report.Error)
	}

	return nil
}
