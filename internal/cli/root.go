// Package cli is the operator front end: one command per screen action,
// backed by the same page, form and lookup controllers a UI would use.
package cli

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/minhahamin/mes-fe-sub000/internal/client"
	"github.com/minhahamin/mes-fe-sub000/internal/config"
	"github.com/minhahamin/mes-fe-sub000/internal/desk"
	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

var ErrUnknownEntity = errors.New("unknown entity")

// App — общее состояние команд: конфиг, каталог, бэкенд.
type App struct {
	out    io.Writer
	errOut io.Writer

	cfgFile string
	catalog *dsl.Catalog
	api     desk.API
	auth    desk.AuthGate
	log     zerolog.Logger
}

type Option func(*App)

func WithOutput(out io.Writer) Option {
	return func(a *App) {
		a.out = out
	}
}

// WithErrOutput — куда пишутся логи.
func WithErrOutput(w io.Writer) Option {
	return func(a *App) {
		a.errOut = w
	}
}

// WithAPI подменяет HTTP-клиент; base-url тогда не используется.
func WithAPI(api desk.API) Option {
	return func(a *App) {
		a.api = api
	}
}

func WithAuth(g desk.AuthGate) Option {
	return func(a *App) {
		a.auth = g
	}
}

// flag → ключ viper
var boundFlags = map[string]string{
	"base-url":    config.KeyClientBaseURL,
	"timeout":     config.KeyClientTimeout,
	"catalog-dir": config.KeyCatalogDir,
	"log-level":   config.KeyLogLevel,
	"env":         config.KeyEnvironment,
}

// NewRootCommand собирает erpdesk со всеми подкомандами.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &App{
		out:    os.Stdout,
		errOut: os.Stderr,
		auth:   desk.AllowAll{},
		log:    log.Logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "erpdesk",
		Short: "Manufacturing ERP desk",
		Long: `erpdesk lists, creates and edits ERP records through the REST backend.
Reference fields are filled by picking a record of another entity (--pick),
the same way the list screens do it.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./erpdesk.yaml)")
	pf.String("base-url", "", "backend URL")
	pf.Duration("timeout", 0, "request timeout")
	pf.String("catalog-dir", "", "directory with *.dsl entity catalog (default: built-in)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("env", "", "environment (development, production)")

	root.AddCommand(
		a.entitiesCmd(),
		a.listCmd(),
		a.showCmd(),
		a.createCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.lookupCmd(),
	)
	return root
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	v, err := config.New(a.cfgFile)
	if err != nil {
		return err
	}
	flags := cmd.Root().PersistentFlags()
	for name, key := range boundFlags {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return errors.Wrapf(err, "bind flag %s", name)
		}
	}
	cfg, err := config.LoadClient(v)
	if err != nil {
		return err
	}
	a.log = config.SetupLogging(cfg.Environment, cfg.LogLevel, a.errOut)

	if cfg.CatalogDir != "" {
		a.catalog, err = dsl.LoadAll(cfg.CatalogDir)
	} else {
		a.catalog, err = dsl.Default()
	}
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	if a.api == nil {
		a.api = client.New(cfg.BaseURL,
			client.WithTimeout(cfg.Timeout),
			client.WithLogger(a.log),
		)
	}
	a.log.Debug().Str("base_url", cfg.BaseURL).Int("entities", len(a.catalog.Entities())).Msg("ready")
	return nil
}

func (a *App) page(name string) (*desk.Page, error) {
	e, ok := a.catalog.Resolve(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntity, "%q", name)
	}
	return desk.NewPage(a.catalog, e, a.api, desk.WithAuth(a.auth), desk.WithPageLogger(a.log)), nil
}
