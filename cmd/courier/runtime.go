package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/courier"
	"github.com/arloliu/courier/broker"
)

// runtime bundles what every subcommand needs: config, logger, metrics and
// a connected broker.
type runtime struct {
	cfg     *courier.Config
	logger  courier.Logger
	metrics courier.MetricsCollector
	nc      *nats.Conn
	js      jetstream.JetStream
	bus     *broker.JetStream
}

func loadConfig(path string) (*courier.Config, error) {
	if path == "" {
		cfg := courier.DefaultConfig()
		return &cfg, nil
	}

	return courier.LoadConfig(path)
}

func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := courier.NewLoggerFromConfig(os.Stderr, cfg.Log)
	if err != nil {
		return nil, err
	}

	metrics := courier.NewNopMetrics()
	if cfg.Metrics.Enabled {
		metrics = courier.NewPrometheusMetrics(prometheus.DefaultRegisterer, cfg.Metrics.Namespace)
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.NATS.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	bus, err := broker.New(js, cfg.BrokerConfig(logger, metrics))
	if err != nil {
		nc.Close()
		return nil, err
	}

	if err := bus.EnsureStream(ctx, cfg.Consumer.StreamSubjects...); err != nil {
		nc.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger, metrics: metrics, nc: nc, js: js, bus: bus}, nil
}

func (rt *runtime) Close() {
	if err := rt.nc.Drain(); err != nil {
		rt.nc.Close()
	}
}

// serveMetrics exposes /metrics until ctx is cancelled when metrics are enabled.
func (rt *runtime) serveMetrics(ctx context.Context) {
	if !rt.cfg.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              rt.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server failed", "addr", srv.Addr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	rt.logger.Info("serving metrics", "addr", srv.Addr)
}

// ledger builds the completed-groups ledger selected by the config.
func (rt *runtime) ledger(ctx context.Context) (courier.CompletionLedger, error) {
	l := rt.cfg.Ledger
	switch l.Backend {
	case courier.LedgerKV:
		return courier.NewKVLedger(ctx, rt.js, l.Bucket, l.Retention)
	case courier.LedgerNone:
		return courier.NewMemoryLedger(0), nil
	default:
		return courier.NewMemoryLedger(l.Retention), nil
	}
}

// component is the lifecycle shared by Resequencer and Router.
type component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Done() <-chan struct{}
	Err() error
}

// runUntilSignal starts c and keeps it running until ctx is cancelled,
// restarting it with backoff after bus errors.
func runUntilSignal(ctx context.Context, c component, logger courier.Logger) error {
	const maxBackoff = 30 * time.Second
	backoff := time.Second

	for {
		if err := c.Start(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			return c.Stop(stopCtx)
		case <-c.Done():
		}

		logger.Warn("consumption stopped, restarting", "error", c.Err(), "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
