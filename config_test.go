package courier

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "COURIER", cfg.Consumer.StreamName)
	require.Equal(t, []string{"courier.>"}, cfg.Consumer.StreamSubjects)
	require.Equal(t, 30*time.Second, cfg.Consumer.AckWait)
	require.Equal(t, "courier.fragments", cfg.Resequencer.InboundSubject)
	require.Equal(t, "courier.deadletter", cfg.Resequencer.DeadLetterSubject)
	require.Equal(t, 5*time.Minute, cfg.Resequencer.StaleAfter)
	require.Equal(t, 30*time.Second, cfg.Resequencer.EvictInterval)
	require.Equal(t, LedgerMemory, cfg.Ledger.Backend)
	require.Equal(t, 10*time.Minute, cfg.Ledger.Retention)
	require.Equal(t, time.Duration(0), cfg.Router.DispatchTimeout)
	require.Equal(t, time.Second, cfg.Router.SweepInterval)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("fills empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			Resequencer: ResequencerConfig{
				InboundSubject: "in",
				StaleAfter:     time.Minute,
				Shards:         8,
			},
			Router: RouterConfig{
				DispatchTimeout: 3 * time.Second,
				SweepInterval:   -1,
			},
			Ledger: LedgerConfig{Backend: LedgerNone},
		}
		SetDefaults(&cfg)

		require.Equal(t, "in", cfg.Resequencer.InboundSubject)
		require.Equal(t, time.Minute, cfg.Resequencer.StaleAfter)
		require.Equal(t, 8, cfg.Resequencer.Shards)
		require.Equal(t, 3*time.Second, cfg.Router.DispatchTimeout)
		require.Equal(t, time.Duration(-1), cfg.Router.SweepInterval)
		require.Equal(t, time.Duration(0), cfg.Ledger.Retention, "disabled ledger keeps zero retention")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "dead-letter equals inbound",
			mutate: func(c *Config) { c.Resequencer.DeadLetterSubject = c.Resequencer.InboundSubject },
			want:   "dead-letter subject must differ",
		},
		{
			name:   "evict interval above stale after",
			mutate: func(c *Config) { c.Resequencer.EvictInterval = 2 * c.Resequencer.StaleAfter },
			want:   "EvictInterval",
		},
		{
			name:   "forward backoff above max",
			mutate: func(c *Config) { c.Resequencer.ForwardRetryMaxBackoff = time.Millisecond },
			want:   "ForwardRetryBackoff",
		},
		{
			name:   "unknown ledger backend",
			mutate: func(c *Config) { c.Ledger.Backend = "redis" },
			want:   "unknown ledger backend",
		},
		{
			name:   "kv ledger without retention",
			mutate: func(c *Config) { c.Ledger.Backend = LedgerKV; c.Ledger.Retention = -1 },
			want:   "retention must be > 0",
		},
		{
			name:   "ready equals work",
			mutate: func(c *Config) { c.Router.ReadySubject = c.Router.WorkSubject },
			want:   "ready subject must differ",
		},
		{
			name:   "timeout without sweeper",
			mutate: func(c *Config) { c.Router.DispatchTimeout = time.Second; c.Router.SweepInterval = -1 },
			want:   "SweepInterval must be > 0",
		},
		{
			name:   "negative timeout",
			mutate: func(c *Config) { c.Router.DispatchTimeout = -time.Second },
			want:   "DispatchTimeout must be >= 0",
		},
		{
			name:   "zero in-flight",
			mutate: func(c *Config) { c.Consumer.MaxInFlight = -1 },
			want:   "MaxInFlight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("reports every violation", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Router.ReadySubject = cfg.Router.WorkSubject
		cfg.Ledger.Backend = "redis"

		err := cfg.Validate()
		require.ErrorIs(t, err, ErrInvalidConfig)
		require.Contains(t, err.Error(), "ready subject")
		require.Contains(t, err.Error(), "redis")
	})
}

type capturingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Info(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}
func (l *capturingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	t.Run("defaults are quiet", func(t *testing.T) {
		cfg := DefaultConfig()
		logger := &capturingLogger{}
		cfg.ValidateWithWarnings(logger)
		require.Empty(t, logger.warns)
	})

	t.Run("short retention and disabled ledger", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Ledger.Retention = time.Second
		logger := &capturingLogger{}
		cfg.ValidateWithWarnings(logger)
		require.Len(t, logger.warns, 1)
		require.Contains(t, logger.warns[0], "shorter than AckWait")

		cfg.Ledger.Backend = LedgerNone
		logger = &capturingLogger{}
		cfg.ValidateWithWarnings(logger)
		require.Len(t, logger.warns, 1)
		require.Contains(t, logger.warns[0], "ledger disabled")
	})

	t.Run("dispatch timeout below sweep interval", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Router.DispatchTimeout = 100 * time.Millisecond
		logger := &capturingLogger{}
		cfg.ValidateWithWarnings(logger)
		require.Len(t, logger.warns, 1)
		require.True(t, strings.HasPrefix(logger.warns[0], "DispatchTimeout"))
	})

	t.Run("disabled sweeper", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Router.DispatchTimeout = 0
		cfg.Router.SweepInterval = -1
		require.NoError(t, cfg.Validate())

		logger := &capturingLogger{}
		cfg.ValidateWithWarnings(logger)
		require.Len(t, logger.warns, 1)
		require.Contains(t, logger.warns[0], "sweeper disabled")
	})
}

func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
nats:
  url: nats://broker:4222
consumer:
  maxInFlight: 16
  ackWait: 45s
resequencer:
  inboundSubject: orders.fragments
  deadLetterSubject: orders.dlq
  staleAfter: 2m
  evictInterval: 10s
ledger:
  backend: kv
  bucket: orders-done
  retention: 15m
router:
  dispatchTimeout: 30s
  sweepInterval: 500ms
metrics:
  enabled: true
`

	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(yamlConfig), &cfg))

	require.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	require.Equal(t, 16, cfg.Consumer.MaxInFlight)
	require.Equal(t, 45*time.Second, cfg.Consumer.AckWait)
	require.Equal(t, "orders.fragments", cfg.Resequencer.InboundSubject)
	require.Equal(t, 2*time.Minute, cfg.Resequencer.StaleAfter)
	require.Equal(t, LedgerKV, cfg.Ledger.Backend)
	require.Equal(t, 15*time.Minute, cfg.Ledger.Retention)
	require.Equal(t, 30*time.Second, cfg.Router.DispatchTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.Router.SweepInterval)
	require.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial file gets defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		require.NoError(t, os.WriteFile(path, []byte("router:\n  workSubject: jobs.in\n"), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "jobs.in", cfg.Router.WorkSubject)
		require.Equal(t, "courier.ready", cfg.Router.ReadySubject)
		require.Equal(t, "courier.fragments", cfg.Resequencer.InboundSubject)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("ledger:\n  backend: redis\n"), 0o600))

		_, err := LoadConfig(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("router: [\n"), 0o600))

		_, err := LoadConfig(path)
		require.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
		require.ErrorContains(t, err, "failed to read config file")
	})
}

func TestConfig_BrokerConfig(t *testing.T) {
	cfg := TestConfig()
	bc := cfg.BrokerConfig(nil, nil)

	require.Equal(t, cfg.Consumer.StreamName, bc.StreamName)
	require.Equal(t, cfg.Consumer.AckWait, bc.AckWait)
	require.Equal(t, cfg.Consumer.MaxInFlight, bc.MaxInFlight)
	require.Equal(t, cfg.Consumer.RetryBackoff, bc.RetryBackoff)
}
