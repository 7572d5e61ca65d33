package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nugget/emoroom/internal/config"
	"github.com/nugget/emoroom/internal/memory"
	"github.com/nugget/emoroom/internal/opstate"
)

// historyOutput is what `emoroom history` prints.
type historyOutput struct {
	Room     string               `json:"room"`
	SavedAt  *time.Time           `json:"saved_at,omitempty"`
	Count    int                  `json:"count"`
	Messages []memory.ChatMessage `json:"messages"`
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var contextOnly bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the room's persisted conversation",
		Long: `Print the room's persisted conversation as JSON.

With --context, ephemeral tool results are left out, showing exactly
what the agent is given on its next turn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, mem, store, err := openMemory(ctx, cmd, root.configPath, true)
			if err != nil {
				return err
			}
			defer store.Close()

			out := historyOutput{Room: cfg.Room.ID}
			if contextOnly {
				out.Messages = mem.ContextView()
			} else {
				out.Messages = mem.FullView()
			}
			out.Count = len(out.Messages)

			saved, err := store.UpdatedAt(ctx, memory.Namespace(cfg.Room.ID), memory.StorageKey)
			if err != nil {
				return err
			}
			if !saved.IsZero() {
				out.SavedAt = &saved
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&contextOnly, "context", false, "omit ephemeral tool results")
	return cmd
}

func newResetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the room's persisted conversation",
		Long: `Clear the room's persisted conversation.

Run this while the server is stopped; a running server keeps its own
copy in memory and rewrites it on the next message. Use
POST /v1/room/reset to clear a live room.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, mem, store, err := openMemory(ctx, cmd, root.configPath, false)
			if err != nil {
				return err
			}
			defer store.Close()

			n := mem.Len()
			if err := mem.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d messages from room %s\n", n, cfg.Room.ID)
			return nil
		},
	}
}

// openMemory loads the configured room's history straight from the
// state database. When strict is false an unreadable history is logged
// and treated as empty. The caller closes the returned store.
func openMemory(ctx context.Context, cmd *cobra.Command, configPath string, strict bool) (*config.Config, *memory.Memory, *opstate.Store, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := configLogger(cmd.ErrOrStderr(), cfg).With("command", cmd.Name())

	store, err := openStore(cfg.DBPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open state store: %w", err)
	}
	mem := memory.New(store, cfg.Room.ID, cfg.Room.MemorySize, logger)
	if err := mem.Load(ctx); err != nil {
		if strict {
			store.Close()
			return nil, nil, nil, err
		}
		logger.Warn("stored history unreadable", "error", err)
	}
	return cfg, mem, store, nil
}
