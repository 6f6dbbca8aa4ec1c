package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/baseline"
	"github.com/modelwatch/modelwatch/internal/config"
	"github.com/modelwatch/modelwatch/internal/drift"
	"github.com/modelwatch/modelwatch/internal/ingest"
	"github.com/modelwatch/modelwatch/internal/lifecycle"
	"github.com/modelwatch/modelwatch/internal/registry"
	"github.com/modelwatch/modelwatch/internal/server"
	"github.com/modelwatch/modelwatch/internal/serving"
	"github.com/modelwatch/modelwatch/internal/trainer"
	"github.com/modelwatch/modelwatch/internal/window"
	"github.com/modelwatch/modelwatch/pkg/logger"
	"github.com/modelwatch/modelwatch/pkg/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	baselines, err := baseline.NewStore(cfg.Baseline.Path, cfg.Baseline.Staleness, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open baseline store", zap.Error(err))
	}
	defer baselines.Close()

	reg, err := registry.NewRegistry(cfg.Registry.Path, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open model registry", zap.Error(err))
	}
	defer reg.Close()

	w := window.New(cfg.Window.Capacity)

	pointer := serving.NewPointer()
	swapper := serving.NewHotSwapper(pointer, serving.FileArtifactLoader{}, loadProbes(cfg.Serving.ProbeFile, zapLogger), zapLogger)
	svc := serving.NewService(pointer, w, zapLogger)

	// Restore the active model from the registry so serving resumes after
	// a restart without waiting for a retrain.
	if active, ok := reg.Active(); ok {
		if err := swapper.Swap(context.Background(), active); err != nil {
			zapLogger.Error("Failed to restore active model", zap.String("id", active.ID), zap.Error(err))
		}
	}

	analyzer := drift.NewAnalyzer(cfg.Drift.Alpha, cfg.Drift.ShareThreshold, cfg.Drift.MinSamples, zapLogger)
	runner := trainer.NewHTTPRunner(cfg.Retrain.JobURL, zapLogger)

	var publisher lifecycle.ReportPublisher
	var consumer *ingest.Consumer
	ingestCtx, cancelIngest := context.WithCancel(context.Background())
	defer cancelIngest()
	if cfg.Kafka.Enabled {
		kafkaPublisher := ingest.NewReportPublisher(cfg.Kafka, zapLogger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher

		consumer = ingest.NewConsumer(cfg.Kafka, w, zapLogger)
		consumer.Start(ingestCtx)
		defer consumer.Close()
	}

	orch := lifecycle.NewOrchestrator(
		lifecycle.Config{
			CorpusPointer:     cfg.Retrain.CorpusPointer,
			Deadline:          cfg.Retrain.Deadline,
			F1Tolerance:       cfg.Retrain.F1Tolerance,
			SyntheticOverride: cfg.Retrain.SyntheticOverride,
			CycleInterval:     cfg.Drift.CycleInterval,
		},
		analyzer, baselines, w, reg, swapper, runner,
		lifecycle.PerformanceAwarePolicy{MinFeedback: cfg.Drift.MinSamples, MaxDegradation: 0.05},
		publisher, zapLogger,
	)
	orch.Start()
	defer orch.Stop()

	srv := server.New(cfg.Server.Addr, svc, w, reg, orch, zapLogger)
	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP shutdown failed", zap.Error(err))
	}
}

// loadProbes reads the smoke-test probe set. Falls back to a single empty
// vector, which still exercises the model's output path.
func loadProbes(path string, zapLogger *zap.Logger) []map[string]models.FeatureValue {
	fallback := []map[string]models.FeatureValue{{}}
	if path == "" {
		return fallback
	}
	data, err := os.ReadFile(path)
	if err != nil {
		zapLogger.Warn("Failed to read probe file, using empty probe",
			zap.String("path", path), zap.Error(err))
		return fallback
	}
	var probes []map[string]models.FeatureValue
	if err := json.Unmarshal(data, &probes); err != nil || len(probes) == 0 {
		zapLogger.Warn("Failed to decode probe file, using empty probe",
			zap.String("path", path), zap.Error(err))
		return fallback
	}
	zapLogger.Info("Smoke-test probes loaded",
		zap.String("path", path), zap.Int("count", len(probes)))
	return probes
}
