// Package config loads settings for the backend and the desk CLI.
//
// Sources, lowest priority first: defaults, optional erpdesk.yaml, ERPDESK_*
// environment variables, command-line flags bound by the caller.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "ERPDESK"
	FileName  = "erpdesk"
)

const (
	KeyEnvironment = "environment"
	KeyLogLevel    = "log_level"
	KeyCatalogDir  = "catalog_dir"

	KeyServerAddr        = "server.addr"
	KeyServerDBURL       = "server.db_url"
	KeyServerSeedDir     = "server.seed_dir"
	KeyServerAutoMigrate = "server.auto_migrate"

	KeyClientBaseURL = "client.base_url"
	KeyClientTimeout = "client.timeout"
)

// Server: настройки dev-бэкенда.
type Server struct {
	Addr string `validate:"required"`
	// пусто = хранение в памяти
	DBURL       string
	SeedDir     string
	CatalogDir  string
	AutoMigrate bool
	Environment string `validate:"oneof=development production test"`
	LogLevel    string `validate:"oneof=trace debug info warn error disabled"`
}

// Client: настройки CLI.
type Client struct {
	BaseURL     string        `validate:"required,url"`
	Timeout     time.Duration `validate:"gte=0"`
	CatalogDir  string
	Environment string `validate:"oneof=development production test"`
	LogLevel    string `validate:"oneof=trace debug info warn error disabled"`
}

// New собирает viper: значения по умолчанию, файл, окружение.
// cfgFile == "" означает поиск erpdesk.yaml в текущей папке; его отсутствие не ошибка.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// LOG_LEVEL без префикса тоже понимаем
	_ = v.BindEnv(KeyLogLevel, EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyEnvironment, "development")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyCatalogDir, "")

	v.SetDefault(KeyServerAddr, ":8080")
	v.SetDefault(KeyServerDBURL, "")
	v.SetDefault(KeyServerSeedDir, "fixtures")
	v.SetDefault(KeyServerAutoMigrate, true)

	v.SetDefault(KeyClientBaseURL, "http://localhost:8080")
	v.SetDefault(KeyClientTimeout, "15s")
}

func LoadServer(v *viper.Viper) (Server, error) {
	cfg := Server{
		Addr:        strings.TrimSpace(v.GetString(KeyServerAddr)),
		DBURL:       strings.TrimSpace(v.GetString(KeyServerDBURL)),
		SeedDir:     strings.TrimSpace(v.GetString(KeyServerSeedDir)),
		CatalogDir:  strings.TrimSpace(v.GetString(KeyCatalogDir)),
		AutoMigrate: v.GetBool(KeyServerAutoMigrate),
		Environment: strings.ToLower(v.GetString(KeyEnvironment)),
		LogLevel:    strings.ToLower(v.GetString(KeyLogLevel)),
	}
	if err := Validate(cfg); err != nil {
		return Server{}, errors.Wrap(err, "server config")
	}
	return cfg, nil
}

func LoadClient(v *viper.Viper) (Client, error) {
	cfg := Client{
		BaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString(KeyClientBaseURL)), "/"),
		Timeout:     v.GetDuration(KeyClientTimeout),
		CatalogDir:  strings.TrimSpace(v.GetString(KeyCatalogDir)),
		Environment: strings.ToLower(v.GetString(KeyEnvironment)),
		LogLevel:    strings.ToLower(v.GetString(KeyLogLevel)),
	}
	if err := Validate(cfg); err != nil {
		return Client{}, errors.Wrap(err, "client config")
	}
	return cfg, nil
}
