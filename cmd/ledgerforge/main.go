package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerforgelabs/ledgerforge/internal/apply"
	"github.com/ledgerforgelabs/ledgerforge/internal/bootstrap"
	"github.com/ledgerforgelabs/ledgerforge/internal/clock"
	"github.com/ledgerforgelabs/ledgerforge/internal/config"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector"
	"github.com/ledgerforgelabs/ledgerforge/internal/idempotency"
	"github.com/ledgerforgelabs/ledgerforge/internal/ingest"
	"github.com/ledgerforgelabs/ledgerforge/internal/migration"
	"github.com/ledgerforgelabs/ledgerforge/internal/observability"
	"github.com/ledgerforgelabs/ledgerforge/internal/reconciliation"
	"github.com/ledgerforgelabs/ledgerforge/internal/redis"
	"github.com/ledgerforgelabs/ledgerforge/internal/security/vault"
	"github.com/ledgerforgelabs/ledgerforge/internal/server"
	"github.com/ledgerforgelabs/ledgerforge/internal/tenant"
	"github.com/ledgerforgelabs/ledgerforge/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "ledgerforge",
		Short:   "LedgerForge payment-event ingestion and reconciliation",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and record schema state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run webhook ingestion + reconciliation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			runServe()
			return nil
		},
	}
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		bootstrap.Module,
		fx.Invoke(bootstrap.EnforceSchemaGate),
		vault.Module,
		connector.Module,
		tenant.Module,
		idempotency.Module,
		apply.Module,
		ingest.Module,
		reconciliation.Module,
		server.Module,
		fx.Invoke(func(s *server.Server) {
			s.RegisterRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func registerSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
