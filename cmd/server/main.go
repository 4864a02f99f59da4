package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/telecare/internal/agent"
	"github.com/chadiek/telecare/internal/callctl"
	"github.com/chadiek/telecare/internal/config"
	"github.com/chadiek/telecare/internal/httpserver"
	"github.com/chadiek/telecare/internal/llm"
	"github.com/chadiek/telecare/internal/media"
	"github.com/chadiek/telecare/internal/scheduler"
	"github.com/chadiek/telecare/internal/session"
	"github.com/chadiek/telecare/internal/store"
	"github.com/chadiek/telecare/internal/stt"
	"github.com/chadiek/telecare/internal/watcher"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	calls := callctl.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioCallerNumber, cfg.PublicHost)

	llmClient := llm.NewClient(cfg.DeepInfraKey, cfg.DeepInfraBaseURL, cfg.DeepInfraModel)
	llmClient.Stream = cfg.StreamReplies

	var archive store.Archiver
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		a, err := store.NewSupabaseArchive(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket)
		if err != nil {
			log.Printf("supabase archive disabled: %v", err)
		} else {
			archive = a
		}
	}
	fileStore, err := store.NewFileStore(cfg.DataDir, cfg.ScheduleFile, archive)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}

	registry := session.NewRegistry(session.DefaultPlan)
	orch := agent.New(llmClient, calls, 20*time.Second)
	watch := watcher.New(calls, llmClient, fileStore, 5*time.Second, 1000*time.Second)

	defaultPatient := session.Patient{Name: cfg.PatientName, Age: cfg.PatientAge}
	newLoop := func() *media.Loop {
		engine := stt.NewAssemblyAI(cfg.AssemblyAIKey, 8000)
		return media.NewLoop(registry, engine, orch, watch, defaultPatient, 0, 0)
	}

	srv := httpserver.New(cfg, httpserver.Deps{Dialer: calls, NewLoop: newLoop})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.StartSweeper(ctx, 10*time.Minute, time.Hour)
	go scheduler.New(fileStore, calls, func(string) string { return cfg.PatientNumber }, time.Minute).Run(ctx)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Echo,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
