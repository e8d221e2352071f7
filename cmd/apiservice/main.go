// Package main runs the API service that reads the seeded people and
// configuration values.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/datamigrations/internal/app/runtime"
	"github.com/R3E-Network/datamigrations/internal/config"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	cfg, err := config.LoadFromEnvFile(*envFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := runtime.NewApplication(ctx, cfg)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	runErr := app.Run(ctx)

	if err := app.Shutdown(context.Background()); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
}
