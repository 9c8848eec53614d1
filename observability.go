package courier

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/internal/metrics"
)

// NewPrometheusMetrics returns a MetricsCollector registering its collectors on reg.
//
// A nil reg uses prometheus.DefaultRegisterer; an empty namespace uses "courier".
// Collectors are registered lazily on first use.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}

// NewNopMetrics returns a MetricsCollector that discards everything.
func NewNopMetrics() MetricsCollector {
	return metrics.NewNop()
}

// NewSlogLogger adapts an slog.Logger to Logger. A nil logger uses slog.Default().
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return logging.NewSlogDefault()
	}

	return logging.NewSlog(logger)
}

// NewLoggerFromConfig builds a text slog Logger writing to w at cfg.Level.
func NewLoggerFromConfig(w io.Writer, cfg LogConfig) (Logger, error) {
	logger, err := logging.NewSlogText(w, cfg.Level)
	if err != nil {
		return nil, err
	}

	return logger, nil
}
