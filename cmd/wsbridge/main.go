package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/timzifer/wsbridge/bridge"
	"github.com/timzifer/wsbridge/config"
	"github.com/timzifer/wsbridge/host"
	"github.com/timzifer/wsbridge/host/exprhost"
	"github.com/timzifer/wsbridge/internal/logging"
	"github.com/timzifer/wsbridge/internal/reload"
	"github.com/timzifer/wsbridge/telemetry"
	"github.com/timzifer/wsbridge/transport"
)

const reloadCheckInterval = 2 * time.Second

var errReload = errors.New("configuration changed")

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *configCheck {
		fmt.Println("configuration ok")
		os.Exit(0)
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := telemetry.Collector(telemetry.Noop())
	if cfg.Telemetry.Enabled {
		prom, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			logger.Warn().Err(err).Msg("telemetry disabled")
		} else {
			collector = prom
			go serveMetrics(cfg.Telemetry.Listen, logger)
		}
	}

	for {
		err := run(ctx, *cfgPath, cfg, logger, collector)
		if errors.Is(err, errReload) {
			next, loadErr := config.Load(*cfgPath)
			if loadErr != nil {
				logger.Error().Err(loadErr).Msg("reload failed, keeping previous configuration")
			} else {
				cfg = next
				logger.Info().Msg("configuration reloaded")
			}
			continue
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("bridge terminated")
			cleanup()
			os.Exit(1)
		}
		return
	}
}

// run builds one bridge instance from the configuration and blocks until the
// context is cancelled or, with hot reload enabled, until the configuration
// file changed.
func run(ctx context.Context, cfgPath string, cfg *config.Config, logger zerolog.Logger, collector telemetry.Collector) error {
	scheduler := host.NewTickerScheduler()
	defer scheduler.Stop()

	b := bridge.New(scheduler,
		bridge.WithLogger(logger),
		bridge.WithTelemetry(collector),
		bridge.WithReporter(host.NewLogReporter(logger)),
		bridge.WithPollInterval(cfg.PollInterval.Duration),
		bridge.WithDispatchInterval(cfg.DispatchInterval.Duration),
		bridge.WithDialer(&transport.WebsocketDialer{
			HandshakeTimeout: cfg.HandshakeTimeout.Duration,
			Logger:           logger,
		}),
	)
	defer b.Shutdown()

	for _, connCfg := range cfg.Connections {
		callbacks, err := exprhost.Compile(connCfg, logger)
		if err != nil {
			return err
		}
		conn := b.Connect(connCfg.URL, callbacks)
		logger.Info().Stringer("conn", conn).Str("url", connCfg.URL).Str("id", connCfg.ID).Msg("connecting")
	}

	if !cfg.HotReload {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher := reload.NewWatcher(cfgPath)
	ticker := time.NewTicker(reloadCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if watcher.Changed() {
				return errReload
			}
		}
	}
}

func serveMetrics(listen string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(listen, mux); err != nil {
		logger.Error().Err(err).Str("listen", listen).Msg("metrics endpoint failed")
	}
}
