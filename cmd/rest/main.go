package main

import (
	"context"
	"log"

	"loan-intake-be/internal/bootstrap"
	"loan-intake-be/internal/config"
	"loan-intake-be/internal/server"
	"loan-intake-be/internal/tracer"
)

func main() {
	// 1. Initialize tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 2. Load configuration
	cfg := config.Load()

	// 3. Bootstrap dependencies
	container := bootstrap.NewContainer(cfg)
	defer container.Sessions.Close()
	defer container.Events.Close()

	// 4. Run server
	srv := server.New(cfg, container)
	log.Fatal(srv.Run())
}
