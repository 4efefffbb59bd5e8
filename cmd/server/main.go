// Command server is the development REST backend for erpdesk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/minhahamin/mes-fe-sub000/internal/api"
	"github.com/minhahamin/mes-fe-sub000/internal/config"
	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/pg"
	"github.com/minhahamin/mes-fe-sub000/internal/seed"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "erpdesk-server",
	Short:         "Development REST backend for the ERP desk",
	Long:          `Serves /api/{resource} for every catalog entity, in memory or in Postgres, seeded from YAML fixtures.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServer,
}

var serverFlags = map[string]string{
	"addr":         config.KeyServerAddr,
	"db-url":       config.KeyServerDBURL,
	"seed-dir":     config.KeyServerSeedDir,
	"auto-migrate": config.KeyServerAutoMigrate,
	"catalog-dir":  config.KeyCatalogDir,
	"log-level":    config.KeyLogLevel,
	"env":          config.KeyEnvironment,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ./erpdesk.yaml)")
	f.String("addr", "", "listen address")
	f.String("db-url", "", "Postgres URL (empty = in-memory)")
	f.String("seed-dir", "", "directory with <resource>.yaml fixtures")
	f.Bool("auto-migrate", true, "apply add-only DDL on start")
	f.String("catalog-dir", "", "directory with *.dsl entity catalog (default: built-in)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("env", "", "environment (development, production)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	for name, key := range serverFlags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return errors.Wrapf(err, "bind flag %s", name)
		}
	}
	cfg, err := config.LoadServer(v)
	if err != nil {
		return err
	}

	logger := config.SetupLogging(cfg.Environment, cfg.LogLevel, os.Stderr)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := loadCatalog(cfg.CatalogDir)
	if err != nil {
		return err
	}
	log.Info().Int("entities", len(cat.Entities())).Msg("catalog loaded")

	store, closeStore, err := openStore(ctx, cfg, cat)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.SeedDir != "" {
		if _, err := os.Stat(cfg.SeedDir); err == nil {
			rep, err := seed.LoadAndApply(ctx, cfg.SeedDir, store, cat)
			if err != nil {
				return errors.Wrap(err, "seed")
			}
			log.Info().Interface("inserted", rep.Inserted).Strs("skipped", rep.Skipped).Msg("fixtures applied")
		} else {
			log.Warn().Str("dir", cfg.SeedDir).Msg("seed dir not found, starting empty")
		}
	}

	opts := []api.Option{api.WithLogger(logger)}
	if cfg.CatalogDir != "" {
		opts = append(opts, api.WithCatalogDir(cfg.CatalogDir))
	}
	server := api.NewServer(cfg.Addr, cat, store, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	return nil
}

func loadCatalog(dir string) (*dsl.Catalog, error) {
	if dir == "" {
		return dsl.Default()
	}
	cat, err := dsl.LoadAll(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "load catalog %s", dir)
	}
	return cat, nil
}

// openStore: без db_url — память, иначе Postgres с add-only миграцией.
func openStore(ctx context.Context, cfg config.Server, cat *dsl.Catalog) (api.Store, func(), error) {
	if cfg.DBURL == "" {
		log.Info().Msg("using in-memory store")
		return api.NewMemoryStore(), func() {}, nil
	}
	db, err := pg.Open(ctx, cfg.DBURL)
	if err != nil {
		return nil, nil, err
	}
	store := pg.NewStore(db, cat)
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, errors.Wrap(err, "migrate")
		}
	}
	log.Info().Msg("using postgres store")
	return store, func() { _ = db.Close() }, nil
}
