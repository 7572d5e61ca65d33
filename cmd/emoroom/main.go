// Emoroom is a single-room WebSocket chat relay with an LLM agent.
//
// Participants authenticate against a static credential table, chat over
// a WebSocket, and get ordered replies from the agent, which may call
// tools before answering. Configuration is a YAML file discovered
// automatically (see [config.DefaultSearchPaths]), a .env file in the
// working directory, and well-known environment variables.
//
// Usage:
//
//	emoroom serve                 Start the room server
//	emoroom connect --name alice  Chat from the terminal
//	emoroom history [--context]   Print the room's persisted memory
//	emoroom reset                 Clear the room's memory
//	emoroom tools                 List the agent's tools
//	emoroom init [dir]            Write a starter config.yaml
//	emoroom version               Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nugget/emoroom/internal/config"
)

// main only builds the OS environment and hands off to [run], so the
// whole command lifecycle can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal; variables may come from the real
	// environment.
	_ = godotenv.Load()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run executes the command line in args against the given stdio.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	cmd := newRootCmd()
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the configuration. An explicit path must
// exist; without one the default locations are searched, and if none
// has a file the environment alone configures the room. Returns the
// config and the path loaded ("" when none).
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		if path == "" {
			return nil, "", fmt.Errorf("load config from environment: %w", err)
		}
		return nil, path, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// configLogger builds the logger the loaded configuration asks for.
func configLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		// Validate already rejected unparseable levels.
		level, _ = config.ParseLogLevel(cfg.LogLevel)
	}
	return newLogger(w, level, cfg.LogFormat)
}
