package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/switchboardhq/supervisor/internal/infrastructure/config"
	"github.com/switchboardhq/supervisor/internal/supervisor"
)

func main() {
	cfg := config.LoadOrDefault()

	port := flag.String("port", cfg.Bridge.Port, "bridge listener port")
	host := flag.String("host", cfg.Bridge.Host, "bridge listener host")
	sqlitePath := flag.String("sqlite", cfg.Storage.SQLitePath, "path to the persisted state database")
	warmBudget := flag.Int("warm-budget", cfg.Lifecycle.WarmBudget, "maximum warm tabs per profile")
	flag.Parse()

	cfg.Bridge.Port = *port
	cfg.Bridge.Host = *host
	cfg.Storage.SQLitePath = *sqlitePath
	cfg.Lifecycle.WarmBudget = *warmBudget

	sup, err := supervisor.New(cfg)
	if err != nil {
		log.Fatalf("supervisor: failed to initialize: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := sup.Run(ctx); err != nil && err != http.ErrServerClosed {
		log.Fatal(fmt.Errorf("supervisor: %w", err))
	}
}
