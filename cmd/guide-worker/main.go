package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/GuideBox/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	s, closeFn, err := newSyncer(cfg, defaultWorkerFactories())
	if err != nil {
		panic(err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.GuideBox.WorkerHTTPAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			syncer:      s,
			cfg:         cfg,
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("worker http server", "error", err)
		}
	}()

	if err := s.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}
