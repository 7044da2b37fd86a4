package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/careconnect/mail-intake/internal/intake"
	"github.com/careconnect/mail-intake/internal/notify"
	"github.com/careconnect/mail-intake/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "mail-intake",
	Short: "Turn government access-request emails into structured records",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Setup logger after flag parsing
		setupLogger()
	},
}

func init() {
	// Add persistent flag to enable verbose logging
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose (info/debug) logging")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	cobra.OnInitialize(initConfig)

	// Register subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("No config.yaml found in current directory.",
				"hint", "Run `mail-intake init` to create one interactively.")
		} else {
			slog.Error("Failed to read config", "error", err)
		}
	} else {
		// Validate config after successful load
		validateConfig()
	}
}

func validateConfig() {
	if viper.GetString("imap.server") == "" || viper.GetString("imap.username") == "" {
		slog.Warn("IMAP account not fully configured - no mailbox will be polled")
	}

	if viper.GetString("database.url") == "" {
		slog.Warn("No database.url configured - access requests cannot be persisted")
	}

	if viper.GetBool("notify.enabled") && viper.GetString("smtp.server") == "" {
		slog.Warn("Receipt notifications enabled but no SMTP server configured")
	}
}

func setupLogger() {
	var level slog.Level
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	} else {
		level = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}

// buildPoller assembles the full pipeline from the loaded configuration.
// The returned cleanup closes the store's connection pool.
func buildPoller(ctx context.Context) (*intake.Poller, func(), error) {
	requests, err := store.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		return nil, nil, err
	}

	var notifier intake.Notifier
	if viper.GetBool("notify.enabled") {
		notifier = notify.NewReceiptMailer()
	}

	poller := intake.NewPoller(intake.DialIMAP, requests, notifier, intake.ConfigFromViper())

	return poller, requests.Close, nil
}
