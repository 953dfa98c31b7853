package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"peerprep/interview/internal/aiproxy"
	_ "peerprep/interview/internal/aiproxy/gemini"
	"peerprep/interview/internal/anticheat"
	"peerprep/interview/internal/config"
	"peerprep/interview/internal/curated"
	"peerprep/interview/internal/eventbus"
	"peerprep/interview/internal/httpapi"
	"peerprep/interview/internal/policy"
	"peerprep/interview/internal/retention"
	"peerprep/interview/internal/sandbox"
	"peerprep/interview/internal/statemachine"
	"peerprep/interview/internal/store"
	"peerprep/interview/internal/token"
	"peerprep/interview/internal/upload"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}

	auth := token.New(cfg.AuthSecret)
	hub := eventbus.NewHub()
	sm := statemachine.New(st, hub)

	pol, err := policy.Load()
	if err != nil {
		logger.Fatal("failed to load anti-cheat policy table", zap.Error(err))
	}
	ac := anticheat.New(st, hub, sm, pol)

	var bank *curated.Bank
	if cfg.MongoURI != "" {
		mongoClient, err := curated.Connect(context.Background(), cfg.MongoURI)
		if err != nil {
			logger.Warn("failed to connect to curated question bank, continuing without it", zap.Error(err))
		} else if bank, err = curated.NewBank(mongoClient, cfg.CuratedDBName); err != nil {
			logger.Warn("failed to open curated question bank, continuing without it", zap.Error(err))
			bank = nil
		}
	}

	aiProvider, err := aiproxy.NewProvider(cfg.AIProvider)
	if err != nil {
		logger.Warn("failed to initialize AI provider, using the deterministic fallback", zap.Error(err))
		aiProvider = aiproxy.NewFallback()
	}
	ai := aiproxy.New(aiProvider, bank)

	sb, err := sandbox.NewEvaluator(sandbox.Images{
		Python: cfg.SandboxImagePython,
		Java:   cfg.SandboxImageJava,
		CPP:    cfg.SandboxImageCPP,
	}, sandbox.Limits{})
	if err != nil {
		logger.Warn("failed to initialize code-eval sandbox, /code-eval will be unavailable", zap.Error(err))
		sb = nil
	}

	up := upload.New(st, auth, cfg.UploadDir)

	sweeper := retention.New(st, cfg.RetentionWindow(), logger)
	if err := sweeper.Start(); err != nil {
		logger.Error("failed to start retention sweeper", zap.Error(err))
	}

	server := httpapi.New(cfg, logger, st, auth, sm, hub, ac, ai, sb, up)
	router := server.Routes()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("interview service starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("interview service shutting down...")
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("interview service exited")
}
