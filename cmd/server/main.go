package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/config"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core/profiles"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/logging"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/store"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	// Profiles: built-ins first, then the optional directory, which may
	// derive from them.
	reg, err := profiles.NewRegistry()
	if err != nil {
		slog.Error("failed to register built-in profiles", "error", err)
		os.Exit(1)
	}
	if cfg.Import.ProfilesDir != "" {
		loaded, err := profiles.LoadDir(reg, cfg.Import.ProfilesDir, logger)
		if err != nil {
			slog.Error("failed to load profiles", "dir", cfg.Import.ProfilesDir, "error", err)
			os.Exit(1)
		}
		slog.Info("profiles loaded", "dir", cfg.Import.ProfilesDir, "count", len(loaded))
	}
	if name := cfg.Import.DefaultProfile; name != "" {
		if _, ok := reg.Lookup(name); !ok {
			slog.Error("IMPORT_DEFAULT_PROFILE is not registered", "profile", name, "registered", reg.Names())
			os.Exit(1)
		}
	}
	slog.Info("profiles registered", "count", reg.Count(), "names", reg.Names())

	ctx := context.Background()

	// Persistence is optional; without it imports can be previewed but not committed.
	var importStore web.ImportStore
	if cfg.Database.Enabled() {
		st, err := store.Open(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer st.Close()
		slog.Info("connected to database", "name", store.DatabaseName(cfg.Database.URL))

		if cfg.Database.Migrate {
			if err := st.Migrate(ctx); err != nil {
				slog.Error("failed to migrate database", "error", err)
				os.Exit(1)
			}
		}
		importStore = st
	} else {
		slog.Warn("DATABASE_URL not set; commits are disabled")
	}

	pipeline := core.NewPipeline(reg, logger)
	limiter := core.NewRunLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	server := web.NewServer(pipeline, limiter, importStore, cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests, then wait for imports already running.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
}
