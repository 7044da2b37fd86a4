package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/careconnect/mail-intake/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the mailbox on an interval and expose the admin trigger API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !viper.InConfig("imap") || !viper.InConfig("database") {
			return fmt.Errorf(`configuration missing or incomplete.

Create a config.yaml file by running:
  mail-intake init

The configuration file should be in your current directory and contain:
- IMAP account settings (to read request emails)
- Database connection URL (to persist access requests)
- Admin API credentials (for the on-demand trigger)`)
		}

		slog.Info("Starting serve mode (polling mailbox)")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		poller, cleanup, err := buildPoller(ctx)
		if err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
		defer cleanup()

		go poller.Start(ctx)

		server, err := web.NewServer(
			viper.GetString("admin.port"),
			viper.GetString("admin.bind"),
			viper.GetString("admin.username"),
			viper.GetString("admin.password"),
			poller,
		)
		if err != nil {
			return err
		}

		return server.Start(ctx)
	},
}

func init() {
	viper.SetDefault("admin.port", "8080")
	viper.SetDefault("admin.bind", "127.0.0.1")
}
