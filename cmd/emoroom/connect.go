package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nugget/emoroom/internal/client"
)

type connectOptions struct {
	url    string
	name   string
	secret string
}

func newConnectCmd() *cobra.Command {
	opts := &connectOptions{}
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Chat in a room from the terminal",
		Long: `Connect to a running room and relay lines from stdin to it.
Everything the room sends is printed as it arrives. End input (Ctrl-D)
to leave the room.

The secret may also be supplied in EMOROOM_SECRET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := opts.secret
			if secret == "" {
				secret = os.Getenv("EMOROOM_SECRET")
			}
			if opts.name == "" {
				return fmt.Errorf("--name is required")
			}
			return client.Run(cmd.Context(), client.Options{
				URL:    opts.url,
				Name:   opts.name,
				Secret: secret,
			}, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "ws://localhost:8787/ws", "room URL")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "identity to join as")
	cmd.Flags().StringVarP(&opts.secret, "secret", "s", "", "identity secret")
	return cmd
}
