package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/noah-isme/mail-webhook-renewal/api/swagger"
	"github.com/noah-isme/mail-webhook-renewal/internal/dto"
	"github.com/noah-isme/mail-webhook-renewal/pkg/config"
	"github.com/noah-isme/mail-webhook-renewal/pkg/database"
	"github.com/noah-isme/mail-webhook-renewal/pkg/export"
	"github.com/noah-isme/mail-webhook-renewal/pkg/logger"
)

// @title Mail Webhook Renewal API
// @version 1.0.0
// @description Keeps mailbox change-notification subscriptions alive for logged-in users
// @BasePath /
// @schemes http https

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func printSubscriptions(w io.Writer, format string, subs []dto.SubscriptionResponse) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(subs)
	case "csv":
		table := export.Table{Headers: []string{"subscription_id", "user_id", "resource", "change_type", "expiration_date_time", "expires_in"}}
		for _, s := range subs {
			table.Rows = append(table.Rows, []string{
				s.SubscriptionID,
				s.UserID,
				s.Resource,
				s.ChangeType,
				s.ExpirationDateTime.UTC().Format(time.RFC3339),
				s.ExpiresIn,
			})
		}
		return export.WriteCSV(w, table)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func newRootCommand() *cobra.Command {
	var (
		cfg  *config.Config
		logr *zap.Logger
	)

	root := &cobra.Command{
		Use:           "renewal-api",
		Short:         "Webhook subscription renewal service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if logr, err = logger.New(cfg); err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logr != nil {
				_ = logr.Sync()
			}
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the renewal engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logr)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()
			if err := database.Migrate(cmd.Context(), db.DB); err != nil {
				return err
			}
			logr.Info("migrations applied")
			return nil
		},
	}

	renewOnceCmd := &cobra.Command{
		Use:   "renew-once",
		Short: "Run a single renewal pass and print its report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logr)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.engine.ManualCheck(cmd.Context())
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}

	var format string
	listCmd := &cobra.Command{
		Use:   "list-subscriptions",
		Short: "Print every tracked subscription, soonest expiry first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logr)
			if err != nil {
				return err
			}
			defer a.close()

			subs, err := a.subscriptions.List(cmd.Context())
			if err != nil {
				return err
			}
			return printSubscriptions(cmd.OutOrStdout(), format, subs)
		},
	}
	listCmd.Flags().StringVar(&format, "format", "csv", "Output format: csv|json")

	root.AddCommand(serveCmd, migrateCmd, renewOnceCmd, listCmd)
	root.SetContext(context.Background())
	return root
}
