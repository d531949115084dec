package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/bridgectl/internal/admin"
	"github.com/danmuck/bridgectl/internal/config"
	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/pool"
	"github.com/danmuck/bridgectl/internal/worker"
)

func main() {
	configPath := flag.String("config", "cmd/bridgectl/config.toml", "path to bridge config")
	writeConfig := flag.Bool("write-config", false, "write a config template and exit")
	force := flag.Bool("force", false, "overwrite an existing config file")
	flag.Parse()

	observability.InitLogger("bridgectl")
	observability.RegisterMetrics()

	if *writeConfig {
		if err := config.WriteTemplate(*configPath, *force); err != nil {
			log.Fatal().Err(err).Msg("failed to write config template")
		}
		log.Info().Str("path", *configPath).Msg("wrote config template")
		return
	}

	cfg, err := config.LoadBridgeConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load bridge config")
	}
	log.Info().Str("path", *configPath).Msg("loaded bridge config")

	launcher := worker.ExecLauncher{Command: cfg.WorkerCmd}
	p := pool.New(pool.Config{
		Size:             cfg.PoolSize,
		Overflow:         cfg.Overflow,
		CheckoutTimeout:  cfg.CheckoutTimeout(),
		OperationTimeout: cfg.OperationTimeout(),
	}, launcher)
	if err := p.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("pool start failed")
	}
	log.Info().
		Int("pool_size", cfg.PoolSize).
		Int("overflow", cfg.Overflow).
		Strs("worker_cmd", cfg.WorkerCmd).
		Msg("bridge started")

	adminSrv := admin.New(cfg.Name, cfg.AdminAddr, cfg.CorsOrigins, p)
	adminSrv.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adminSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("admin shutdown")
	}
	p.Shutdown()
	log.Info().Msg("bridge stopped")
}
