package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docstruct/internal/api"
	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/layout"
	"github.com/dgallion1/docstruct/internal/metrics"
	"github.com/dgallion1/docstruct/internal/pathstore"
	"github.com/dgallion1/docstruct/internal/pipeline"
	"github.com/dgallion1/docstruct/internal/recognize"
	"github.com/dgallion1/docstruct/internal/stats"
	"github.com/dgallion1/docstruct/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if cfg.ConfigFile != "" {
		opts, err := config.LoadOptionsFile(cfg.ConfigFile, cfg.Pipeline)
		if err != nil {
			log.Error("invalid config file", "path", cfg.ConfigFile, "error", err)
			os.Exit(1)
		}
		cfg.Pipeline = opts
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	latency := stats.NewLatency(time.Hour)

	// Recognition falls back to the no-op engine when ocrmypdf is missing.
	var engine recognize.Engine
	if ocr := recognize.NewOCRmyPDF(cfg.OCRBinary); ocr.Available() {
		engine = ocr
	} else {
		log.Warn("recognition engine not found, scanned documents will not be recognized", "binary", cfg.OCRBinary)
	}
	gate := recognize.NewGate(engine, layout.PDF{}, cfg.Pipeline, log.With("component", "recognize"),
		recognize.WithLatency(latency), recognize.WithObserver(m))

	p := pipeline.New(layout.PDF{}, gate, cfg.Pipeline, m, log.With("component", "pipeline"))

	// Initialize storage.
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("open store", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	var (
		ps        *pathstore.Client
		publisher *pathstore.Publisher
		sink      pipeline.ChunkPublisher
	)
	if cfg.PathstoreURL != "" {
		ps = pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		publisher = pathstore.NewPublisher(ps, "")
		sink = publisher
	}

	// Initialize pipeline.
	w := pipeline.NewWorker(p, st, sink, cfg.PersistDir, log.With("component", "worker"), cfg.MaxConcurrentPublish)
	orch := pipeline.NewOrchestrator(cfg, w, m, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Backends{
		Orchestrator: orch,
		Pipeline:     p,
		Store:        st,
		Publisher:    publisher,
		Latency:      latency,
		Metrics:      m,
		Engine:       gate.EngineName(),
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Pipeline.RecognitionTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("starting docstruct",
		"port", cfg.Port,
		"engine", gate.EngineName(),
		"store", cfg.DatabasePath,
		"publish", cfg.PathstoreURL != "",
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = serve(httpServer, sigCh, log, func() {
		// Stop accepting jobs only after handlers have drained.
		orch.Stop()
		if ps != nil {
			ps.Close()
		}
		if err := st.Close(); err != nil {
			log.Warn("close store", "error", err)
		}
	})
	if err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// serve runs srv until a signal arrives on sigCh, then shuts it down and
// runs cleanup. It returns only after cleanup has finished.
func serve(srv *http.Server, sigCh <-chan os.Signal, log *slog.Logger, cleanup func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		cleanup()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
