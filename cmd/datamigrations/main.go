// Package main runs the one-shot data migration worker: it seeds the
// configuration store, applies pending schema migrations and seeds the
// people table, then exits.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/datamigrations/internal/app/runtime"
	"github.com/R3E-Network/datamigrations/internal/config"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	os.Exit(run(*envFile))
}

func run(envFile string) int {
	cfg, err := config.LoadFromEnvFile(envFile)
	if err != nil {
		log.Printf("load config: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job, err := runtime.NewMigrationJob(ctx, cfg)
	if err != nil {
		log.Printf("initialise migration worker: %v", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		job.Close(closeCtx)
	}()

	if err := job.Run(ctx); err != nil {
		log.Printf("data migrations failed: %v", err)
		return 1
	}

	<-job.Stopped()
	return 0
}
