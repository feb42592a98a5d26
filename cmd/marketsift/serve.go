package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marketsift/marketsift/internal/cache"
	httpapi "github.com/marketsift/marketsift/internal/interfaces/http"
	"github.com/marketsift/marketsift/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the extraction HTTP API",
		Long: `Serves the JSON API: POST /extract, POST /extract/all, POST /extract/stream
(NDJSON), GET /adapters/{marketplace}, GET /health and GET /metrics.`,
		RunE: runServe,
	}
	cmd.Flags().String("host", "", "Bind host (overrides config)")
	cmd.Flags().Int("port", 0, "Bind port (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m := metrics.New()
	orch := buildOrchestrator(cfg, m)

	var extractCache *cache.Cache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		extractCache = cache.New(rdb, cfg.Redis.TTL(), m)
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL()).Msg("Extraction cache enabled")
	}

	serverCfg := httpapi.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout()
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout()
	serverCfg.IdleTimeout = cfg.Server.IdleTimeout()
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		serverCfg.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		serverCfg.Port = port
	}

	server, err := httpapi.NewServer(serverCfg, orch, extractCache, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
