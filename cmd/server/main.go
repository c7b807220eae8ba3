package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agriscan/internal/app"
	"agriscan/internal/config"
	"agriscan/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	l, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Sync()

	application, err := app.NewApp(cfg, l)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		l.Error("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
