package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-memory-chat-be/internal/bootstrap"
	"ai-memory-chat-be/internal/config"
	"ai-memory-chat-be/internal/server"
	"ai-memory-chat-be/internal/tracer"
	"ai-memory-chat-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.App.Environment == "development")
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg)
	if err != nil {
		log.Fatalf("Unable to bootstrap: %v", err)
	}

	shutdownTracer := tracer.InitTracer(cfg.Tracing, container.Logger)

	// 4. Start Background Services
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	go container.WebSocketHub.Run(hubCtx)

	if err := container.ConsumerService.Consume(hubCtx); err != nil {
		log.Fatalf("Unable to start extraction consumer: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)
	go func() {
		if err := srv.Run(); err != nil {
			container.Logger.Error("Main", "Server stopped", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	container.Logger.Info("Main", "Shutting down", nil)

	// 6. Graceful shutdown: stop HTTP, drain extraction, then close the rest.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Warn("Main", "HTTP shutdown error", map[string]interface{}{"error": err.Error()})
	}
	container.Shutdown(shutdownCtx)
	stopHub()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("Tracer shutdown error: %v", err)
	}
}
