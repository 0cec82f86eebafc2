// bookingctl is the operator CLI for the booking workflow service: apply
// migrations, run a sweep pass, or resend a booking for an invoice.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"bookingflow/internal/artifact"
	"bookingflow/internal/config"
	"bookingflow/internal/logging"
	"bookingflow/internal/notify"
	"bookingflow/internal/repository"
	"bookingflow/internal/workflow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operator tooling for the booking workflow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	root.AddCommand(
		newMigrateCmd(&configFile),
		newSweepCmd(&configFile),
		newResendCmd(&configFile),
	)
	return root
}

func newMigrateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, cleanup, err := openStore(ctx, *configFile)
			if err != nil {
				return err
			}
			defer cleanup()
			return store.Migrate(ctx)
		},
	}
}

func newSweepCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweeper pass over stale pending bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			service, cleanup, err := buildService(ctx, *configFile)
			if err != nil {
				return err
			}
			defer cleanup()

			res := service.Sweep(ctx)
			fmt.Printf("processed: %d\n", res.Processed)
			for _, e := range res.Errors {
				fmt.Printf("error: %s\n", e)
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d errors during sweep", len(res.Errors))
			}
			return nil
		},
	}
}

func newResendCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resend <invoice-id>",
		Short: "Regenerate and resend the booking for an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			service, cleanup, err := buildService(ctx, *configFile)
			if err != nil {
				return err
			}
			defer cleanup()
			return service.Resend(ctx, args[0])
		},
	}
}

func openStore(ctx context.Context, configFile string) (*repository.PostgresStore, func(), error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := pgxpool.New(ctx, fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	))
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	logger := logging.NewLogger()
	return repository.NewPostgresStore(pool, logger), pool.Close, nil
}

func buildService(ctx context.Context, configFile string) (*workflow.Service, func(), error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewLogger()

	pool, err := pgxpool.New(ctx, fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	))
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	store := repository.NewPostgresStore(pool, logger)

	var artifacts artifact.Store
	if cfg.Storage.Backend == "s3" {
		artifacts, err = artifact.NewS3Store(ctx, artifact.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
	} else {
		artifacts = artifact.NewFSStore(cfg.Storage.Dir)
	}

	transport, err := notify.NewSMTPTransport(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.Notify.FromAddress,
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	notifier := notify.NewNotifier(transport, cfg.Notify.OperationsMailbox, logger)

	wfCfg := workflow.DefaultConfig()
	wfCfg.SweepGrace = time.Duration(cfg.Sweep.GraceSeconds) * time.Second
	wfCfg.SweepBatch = cfg.Sweep.BatchSize
	wfCfg.ReclaimAge = time.Duration(cfg.Sweep.ReclaimMinutes) * time.Minute
	wfCfg.LogoPath = cfg.Branding.LogoPath

	service := workflow.NewService(store, store, store, artifacts, notifier, wfCfg, logger)
	return service, pool.Close, nil
}
