package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"soundserver/internal/catalog"
)

const envPrefix = "soundserver"

type config struct {
	StoreDir        string
	ManifestDir     string
	Host            string
	Port            int
	DevMode         bool
	RefreshInterval time.Duration
	Watch           bool
	RateLimit       float64
	FetchRPS        float64
	FetchTimeout    time.Duration
	MaxUpload       int64
	CORSOrigins     []string
	EnableHSTS      bool
}

func (c config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func loadEnvFiles() {
	// Do not override environment provided by the runtime (e.g. Docker).
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("refresh-interval", catalog.DefaultRefreshInterval)
	v.SetDefault("rate-limit", 20.0)
	v.SetDefault("fetch-rps", 5.0)
	v.SetDefault("fetch-timeout", 30*time.Second)
	v.SetDefault("max-upload", int64(50<<20))
	v.SetDefault("cors-origins", []string{"*"})
}

// readConfigFile reads configFile, or soundserver.yaml from the working
// directory or the user config directory when configFile is empty.
func readConfigFile(v *viper.Viper, configFile string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", configFile, err)
		}
		log.Debug("Using configuration file", "path", v.ConfigFileUsed())
		return nil
	}

	v.SetConfigName(envPrefix)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, envPrefix))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("could not parse configuration file: %w", err)
	}
	log.Debug("Using configuration file", "path", v.ConfigFileUsed())
	return nil
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		StoreDir:        v.GetString("store"),
		ManifestDir:     v.GetString("manifests"),
		Host:            v.GetString("host"),
		Port:            v.GetInt("port"),
		DevMode:         v.GetBool("dev-mode"),
		RefreshInterval: v.GetDuration("refresh-interval"),
		Watch:           v.GetBool("watch"),
		RateLimit:       v.GetFloat64("rate-limit"),
		FetchRPS:        v.GetFloat64("fetch-rps"),
		FetchTimeout:    v.GetDuration("fetch-timeout"),
		MaxUpload:       v.GetInt64("max-upload"),
		CORSOrigins:     v.GetStringSlice("cors-origins"),
		EnableHSTS:      v.GetBool("hsts"),
	}

	if cfg.StoreDir == "" {
		return cfg, errors.New("a store directory is required (--store or SOUNDSERVER_STORE)")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.RefreshInterval <= 0 {
		return cfg, fmt.Errorf("refresh interval must be positive, got %s", cfg.RefreshInterval)
	}
	if cfg.MaxUpload <= 0 {
		return cfg, fmt.Errorf("max upload must be positive, got %d", cfg.MaxUpload)
	}
	return cfg, nil
}
