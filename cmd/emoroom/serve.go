package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nugget/emoroom/internal/brain"
	"github.com/nugget/emoroom/internal/buildinfo"
	"github.com/nugget/emoroom/internal/events"
	"github.com/nugget/emoroom/internal/llm"
	"github.com/nugget/emoroom/internal/memory"
	"github.com/nugget/emoroom/internal/opstate"
	"github.com/nugget/emoroom/internal/room"
	"github.com/nugget/emoroom/internal/server"
	"github.com/nugget/emoroom/internal/tools"
)

const shutdownTimeout = 10 * time.Second

// openStore opens the durable state database. Tests swap it for a
// driver that does not need cgo.
var openStore = opstate.Open

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the room server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, root.configPath)
		},
	}
}

// runServe wires the room together and serves it until ctx is
// cancelled.
func runServe(ctx context.Context, cmd *cobra.Command, configPath string) error {
	stderr := cmd.ErrOrStderr()
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configLogger(stderr, cfg)
	logger.Info("starting emoroom",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"config", path,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	store, err := openStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()
	logger.Info("state store opened", "path", cfg.DBPath())

	mem := memory.New(store, cfg.Room.ID, cfg.Room.MemorySize, logger)
	if err := mem.Load(ctx); err != nil {
		return fmt.Errorf("%w (run `emoroom reset` to discard it)", err)
	}

	provider, err := llm.New(cfg.Provider, cfg.Agent.CallTimeout, logger)
	if err != nil {
		// Participants still get a clear apology per turn instead of a
		// server that refuses to start.
		logger.Warn("llm provider unavailable", "provider", cfg.Provider.Name, "error", err)
		provider = llm.Unavailable(cfg.Provider.Name, err)
	}

	registry := tools.NewDefaultRegistry(logger)
	bus := events.New()

	b := brain.New(provider, registry, brain.Config{
		AgentName:   cfg.Agent.Name,
		Timezone:    cfg.Agent.Timezone,
		ToolCalling: cfg.Agent.EnableToolCalling,
		CallTimeout: cfg.Agent.CallTimeout,
	}, bus, logger)

	rm := room.New(room.Config{
		ID:               cfg.Room.ID,
		AgentName:        cfg.Agent.Name,
		Policy:           cfg.Room.Policy,
		MaxMessageLength: cfg.Room.MaxMessageLength,
		RateLimit:        cfg.Room.RateLimit,
		QueueSize:        cfg.Room.QueueSize,
		UserSecrets:      cfg.Room.UserSecrets,
	}, mem, b, bus, logger)

	srv := server.New(server.Config{
		Address:    cfg.Listen.Address,
		Port:       cfg.Listen.Port,
		AdminToken: cfg.AdminToken,
		Provider:   provider.Name(),
	}, rm, registry, bus, logger)
	srv.SetStore(store)

	if cfg.AdminToken == "" {
		logger.Warn("admin_token not set; admin endpoints are open")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			_ = rm.Shutdown(context.Background())
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := rm.Shutdown(shutdownCtx); err != nil {
		logger.Warn("room shutdown", "error", err)
	}
	logger.Info("stopped", "uptime", buildinfo.Uptime())
	return nil
}
