// Package main runs the PlayPark engagement engine API server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/runtime"
)

func main() {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	app, err := runtime.NewApplication()
	if err != nil {
		log.Fatalf("Failed to initialise application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Println("Shutting down...")
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}

	if err := app.Shutdown(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
