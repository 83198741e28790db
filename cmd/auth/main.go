package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tokend/internal/auth/app"
	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the token server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := app.New(cmd.Context(), app.LoadConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Run()
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.LoadConfig()
			db, err := app.OpenDatabase(cfg, app.NewLogger(cfg))
			if err != nil {
				return err
			}
			return db.Close()
		},
	}

	var seedFile string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Load seed scopes, clients and users and exit",
		Long: `seed registers the built-in demo scopes, clients and administrator user,
or the contents of a YAML seed file. Records that already exist are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.LoadConfig()
			if seedFile != "" {
				cfg.SeedFile = seedFile
			}
			return runSeed(cmd.Context(), cfg)
		},
	}
	seed.Flags().StringVar(&seedFile, "file", "", "YAML seed file (env AUTH_SEED_FILE)")

	root := &cobra.Command{
		Use:          "tokend",
		Short:        "OAuth2 / OpenID Connect token server",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(serve, migrate, seed)
	return root
}

func runSeed(ctx context.Context, cfg app.Config) error {
	logger := app.NewLogger(cfg)
	if err := cryptox.LoadPepper(cfg.PepperFile); err != nil {
		return fmt.Errorf("load pepper: %w", err)
	}

	db, err := app.OpenDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	s := app.DefaultSeed()
	if cfg.SeedFile != "" {
		if s, err = app.LoadSeed(cfg.SeedFile); err != nil {
			return err
		}
	}

	// Seeding hashes secrets and never signs, so no key manager is needed.
	svc := service.New(db, nil, nil, service.Config{Issuer: cfg.Issuer, CacheTTL: cfg.CacheTTL})
	return app.ApplySeed(slogx.WithContext(ctx, logger), svc, s)
}
