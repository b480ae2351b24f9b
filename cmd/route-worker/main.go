package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/RouteBox/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	p, closeFn, err := buildPoller(cfg, defaultWorkerFactories())
	if err != nil {
		panic(err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Служебный HTTP: health, stats, ручной trigger.
	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.RouteBox.WorkerHTTPAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			poller:      p,
			cfg:         cfg,
		})
		if err != nil {
			slog.Error("worker http server", "error", err.Error())
		}
	}()

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}
