package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/huddle-backend/internal/app"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	runErr := a.Run(ctx)
	if runErr != nil {
		a.Log.Error("Server stopped with error", "error", runErr)
	} else {
		a.Log.Info("Server stopped")
	}
	a.Close()
	if runErr != nil {
		os.Exit(1)
	}
}
