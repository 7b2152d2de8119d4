package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"soundserver/internal/catalog"
	"soundserver/internal/httpx"
	"soundserver/internal/platform/remote"
)

// Version is set at build time.
var Version = ""

func main() {
	loadEnvFiles()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error("soundserver failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "soundserver",
		Short:         "Serve a directory of sound clips over HTTP",
		Long:          "Serve a directory of .wav and .mp3 clips, merged with third-party manifests, with fuzzy search and uploads.",
		Version:       version(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return readConfigFile(v, configFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			setupLogging(cfg.DevMode)
			return serve(cmd.Context(), cfg)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&configFile, "config", "", "config file (default ./soundserver.yaml)")
	persistent.String("store", "", "directory holding the local sounds")
	persistent.String("manifests", "", "directory of third-party manifests (*.json, *.jsonc)")
	persistent.Bool("dev-mode", false, "debug logging")
	persistent.Float64("fetch-rps", 5, "outbound downloads per second, 0 disables limiting")
	persistent.Duration("fetch-timeout", 30*time.Second, "timeout for a single remote download")

	flags := cmd.Flags()
	flags.String("host", "0.0.0.0", "address to listen on")
	flags.Int("port", 8000, "port to listen on")
	flags.Duration("refresh-interval", catalog.DefaultRefreshInterval, "rebuild the catalog when it is older than this")
	flags.Bool("watch", false, "invalidate the catalog when the store or manifests change on disk")
	flags.Float64("rate-limit", 20, "requests per second per client, 0 disables")
	flags.Int64("max-upload", 50<<20, "maximum request body in bytes")
	flags.StringSlice("cors-origins", []string{"*"}, "allowed CORS origins")
	flags.Bool("hsts", false, "send Strict-Transport-Security")

	setDefaults(v)
	_ = v.BindPFlags(persistent)
	_ = v.BindPFlags(flags)

	cmd.AddCommand(newPrefetchCmd(v))
	return cmd
}

func version() string {
	if Version == "" {
		return "unknown (built from source)"
	}
	return Version
}

func setupLogging(devMode bool) {
	log.SetReportTimestamp(true)
	if devMode {
		log.SetLevel(log.DebugLevel)
		log.Debug("Running in dev mode")
		return
	}
	log.SetLevel(log.InfoLevel)
}

type server struct {
	catalog *catalog.Catalog
	handler http.Handler
	limiter *httpx.RateLimitMiddleware
}

func newCatalog(cfg config, clk clock.Clock) (*catalog.Catalog, *catalog.DirStore, *remote.Client, error) {
	store, err := catalog.NewDirStore(cfg.StoreDir)
	if err != nil {
		return nil, nil, nil, err
	}
	fetcher := remote.NewClient("soundserver/"+version(), cfg.FetchRPS, cfg.FetchTimeout)
	cat := catalog.New(store, fetcher, clk, catalog.Config{
		StoreDir:        cfg.StoreDir,
		ManifestDir:     cfg.ManifestDir,
		RefreshInterval: cfg.RefreshInterval,
		RoutePrefix:     catalog.DefaultRoutePrefix,
	})
	return cat, store, fetcher, nil
}

func newServer(cfg config, clk clock.Clock) (*server, error) {
	cat, store, fetcher, err := newCatalog(cfg, clk)
	if err != nil {
		return nil, err
	}
	svc := catalog.NewService(cat, store, fetcher)

	var limiter *httpx.RateLimitMiddleware
	if cfg.RateLimit > 0 {
		limiter = newRateLimiter(cfg.RateLimit)
	}

	return &server{
		catalog: cat,
		handler: newRouter(cfg, cat, catalog.NewHTTPHandler(svc, cfg.MaxUpload), limiter),
		limiter: limiter,
	}, nil
}

// newRateLimiter allows bursts of twice the steady rate.
func newRateLimiter(rps float64) *httpx.RateLimitMiddleware {
	return httpx.NewRateLimitMiddleware(rps, int(2*rps)+1)
}

func (s *server) close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func serve(ctx context.Context, cfg config) error {
	srv, err := newServer(cfg, clock.NewClock())
	if err != nil {
		return err
	}
	defer srv.close()

	// a broken manifest should not keep the local sounds offline; the next
	// request retries the build
	if err := srv.catalog.Build(ctx); err != nil {
		log.Warn("Initial catalog build failed", "err", err)
	}

	if cfg.Watch {
		if err := srv.catalog.Watch(ctx, existingDirs(cfg.StoreDir, cfg.ManifestDir)...); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.addr(),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      cfg.FetchTimeout + 2*time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", cfg.addr(), "store", cfg.StoreDir, "manifests", cfg.ManifestDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func existingDirs(dirs ...string) []string {
	var out []string
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	return out
}
