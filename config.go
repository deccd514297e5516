package scanrelay

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/scanrelay/internal/fsutil"
	"github.com/arloliu/scanrelay/internal/transport"
)

// QueuesConfig names the three work-queue streams shared by producer and consumer.
type QueuesConfig struct {
	// Chunks carries document chunks from producer to consumer.
	Chunks Queue `yaml:"chunks"`

	// Telemetry carries status snapshots from producer to consumer.
	Telemetry Queue `yaml:"telemetry"`

	// Control carries timeout updates from consumer to producer.
	Control Queue `yaml:"control"`
}

// LockConfig controls how long file operations wait for a file held by
// another writer (the scanner writing an image, an editor saving the timeout file).
type LockConfig struct {
	// Retries is the number of exclusive-access attempts per file.
	Retries int `yaml:"retries"`

	// RetryDelay is the pause between two exclusive-access attempts.
	RetryDelay time.Duration `yaml:"retryDelay"`
}

// ProducerConfig configures the scanner side.
type ProducerConfig struct {
	// InputDir is the scanner's output directory, watched for img_NNN files.
	InputDir string `yaml:"inputDir"`

	// StagingDir holds accepted images until shutdown. Must differ from InputDir.
	StagingDir string `yaml:"stagingDir"`

	// Timeout is the initial inactivity timeout that closes an open document.
	// The consumer can replace it at runtime through the control queue.
	Timeout time.Duration `yaml:"timeout"`

	// ChunkSize is the chunk payload capacity in bytes.
	ChunkSize int `yaml:"chunkSize"`

	// StatusInterval is the period of status snapshots.
	StatusInterval time.Duration `yaml:"statusInterval"`

	// PublishRate caps chunk publishes per second. Zero means unlimited.
	PublishRate float64 `yaml:"publishRate"`

	// PublishBurst is the publish limiter burst size.
	PublishBurst int `yaml:"publishBurst"`

	// ShutdownGrace bounds the final flush of an open document on shutdown.
	ShutdownGrace time.Duration `yaml:"shutdownGrace"`

	// SettleWindow is how long an image must stay unmodified before it is
	// staged, so a scanner still writing it is not picked up half done.
	SettleWindow time.Duration `yaml:"settleWindow"`

	// ControlDurable is the durable consumer name on the control stream.
	ControlDurable string `yaml:"controlDurable"`
}

// ConsumerConfig configures the server side.
type ConsumerConfig struct {
	// OutputDir receives result_{k}.pdf files.
	OutputDir string `yaml:"outputDir"`

	// ConfigLogPath is the CSV log that receives one line per snapshot.
	ConfigLogPath string `yaml:"configLogPath"`

	// TimeoutFile is the operator's desired-timeout file.
	TimeoutFile string `yaml:"timeoutFile"`

	// PollInterval is the pause between two chunk queue passes.
	PollInterval time.Duration `yaml:"pollInterval"`

	// DrainBatch is the fetch batch size of a chunk queue pass.
	DrainBatch int `yaml:"drainBatch"`

	// LedgerPath enables the SQLite ledger when set.
	LedgerPath string `yaml:"ledgerPath"`

	// ChunkDurable is the durable consumer name on the chunk stream.
	ChunkDurable string `yaml:"chunkDurable"`

	// TelemetryDurable is the durable consumer name on the telemetry stream.
	TelemetryDurable string `yaml:"telemetryDurable"`
}

// Config is the configuration shared by Producer and Consumer.
//
// All duration fields accept standard Go duration strings like "500ms", "5s", "1m".
type Config struct {
	// NATSURL is the broker address used by the CLI.
	NATSURL string `yaml:"natsUrl"`

	// Queues names the streams and subjects.
	Queues QueuesConfig `yaml:"queues"`

	// Producer configures the scanner side.
	Producer ProducerConfig `yaml:"producer"`

	// Consumer configures the server side.
	Consumer ConsumerConfig `yaml:"consumer"`

	// Lock is the file access retry policy used by both sides.
	Lock LockConfig `yaml:"lock"`

	// MetricsAddr exposes Prometheus metrics on this address when set (e.g. ":9090").
	MetricsAddr string `yaml:"metricsAddr"`

	// OperationTimeout bounds stream and consumer creation at startup.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// maxChunkSize keeps a base64-encoded chunk message under the default
// 1 MiB NATS payload limit.
const maxChunkSize = 512 * 1024

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		NATSURL: "nats://127.0.0.1:4222",
		Queues: QueuesConfig{
			Chunks:    transport.ChunkQueue,
			Telemetry: transport.TelemetryQueue,
			Control:   transport.ControlQueue,
		},
		Producer: ProducerConfig{
			InputDir:       "scans",
			StagingDir:     "staging",
			Timeout:        5 * time.Second,
			ChunkSize:      1024,
			StatusInterval: 10 * time.Second,
			PublishBurst:   1,
			ShutdownGrace:  20 * time.Second,
			SettleWindow:   250 * time.Millisecond,
			ControlDurable: "scanrelay-producer",
		},
		Consumer: ConsumerConfig{
			OutputDir:        "documents",
			ConfigLogPath:    "config.csv",
			TimeoutFile:      "timeout.toml",
			PollInterval:     time.Second,
			DrainBatch:       100,
			ChunkDurable:     "scanrelay-reassembler",
			TelemetryDurable: "scanrelay-recorder",
		},
		Lock: LockConfig{
			Retries:    3,
			RetryDelay: 5 * time.Second,
		},
		OperationTimeout: 10 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.NATSURL == "" {
		cfg.NATSURL = defaults.NATSURL
	}
	setQueueDefaults(&cfg.Queues.Chunks, defaults.Queues.Chunks)
	setQueueDefaults(&cfg.Queues.Telemetry, defaults.Queues.Telemetry)
	setQueueDefaults(&cfg.Queues.Control, defaults.Queues.Control)

	p, dp := &cfg.Producer, defaults.Producer
	if p.InputDir == "" {
		p.InputDir = dp.InputDir
	}
	if p.StagingDir == "" {
		p.StagingDir = dp.StagingDir
	}
	if p.Timeout == 0 {
		p.Timeout = dp.Timeout
	}
	if p.ChunkSize == 0 {
		p.ChunkSize = dp.ChunkSize
	}
	if p.StatusInterval == 0 {
		p.StatusInterval = dp.StatusInterval
	}
	if p.PublishBurst == 0 {
		p.PublishBurst = dp.PublishBurst
	}
	if p.ShutdownGrace == 0 {
		p.ShutdownGrace = dp.ShutdownGrace
	}
	if p.SettleWindow == 0 {
		p.SettleWindow = dp.SettleWindow
	}
	if p.ControlDurable == "" {
		p.ControlDurable = dp.ControlDurable
	}
	// Note: PublishRate of 0 is valid (unlimited), so we don't apply default

	c, dc := &cfg.Consumer, defaults.Consumer
	if c.OutputDir == "" {
		c.OutputDir = dc.OutputDir
	}
	if c.ConfigLogPath == "" {
		c.ConfigLogPath = dc.ConfigLogPath
	}
	if c.TimeoutFile == "" {
		c.TimeoutFile = dc.TimeoutFile
	}
	if c.PollInterval == 0 {
		c.PollInterval = dc.PollInterval
	}
	if c.DrainBatch == 0 {
		c.DrainBatch = dc.DrainBatch
	}
	if c.ChunkDurable == "" {
		c.ChunkDurable = dc.ChunkDurable
	}
	if c.TelemetryDurable == "" {
		c.TelemetryDurable = dc.TelemetryDurable
	}
	// Note: an empty LedgerPath disables the ledger

	if cfg.Lock.Retries == 0 {
		cfg.Lock.Retries = defaults.Lock.Retries
	}
	if cfg.Lock.RetryDelay == 0 {
		cfg.Lock.RetryDelay = defaults.Lock.RetryDelay
	}

	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// retryPolicy converts the lock settings into the file operation retry policy.
func (l LockConfig) retryPolicy() fsutil.RetryPolicy {
	return fsutil.RetryPolicy{Attempts: l.Retries, Delay: l.RetryDelay}
}

func setQueueDefaults(q *Queue, def Queue) {
	if q.Stream == "" {
		q.Stream = def.Stream
	}
	if q.Subject == "" {
		q.Subject = def.Subject
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - Stream names and subjects are set, and the three subjects are distinct
//   - Producer.InputDir and Producer.StagingDir are set and differ
//   - Producer.Timeout, StatusInterval and Consumer.PollInterval > 0
//   - 0 < Producer.ChunkSize <= 512 KiB (chunk messages must fit the broker payload limit)
//   - Producer.PublishRate >= 0, SettleWindow >= 0, Lock.Retries >= 1, Lock.RetryDelay >= 0
//   - Consumer.OutputDir, ConfigLogPath and TimeoutFile are set
//   - 0 < Producer.ShutdownGrace < ShutdownTimeout, so the final flush ends before Stop gives up
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

func (cfg *Config) validate() error {
	queues := map[string]Queue{
		"chunks":    cfg.Queues.Chunks,
		"telemetry": cfg.Queues.Telemetry,
		"control":   cfg.Queues.Control,
	}
	subjects := make(map[string]string, len(queues))
	for name, q := range queues {
		if q.Stream == "" || q.Subject == "" {
			return fmt.Errorf("queue %q needs both a stream and a subject", name)
		}
		if other, dup := subjects[q.Subject]; dup {
			return fmt.Errorf("queues %q and %q share subject %q", other, name, q.Subject)
		}
		subjects[q.Subject] = name
	}

	p := cfg.Producer
	if p.InputDir == "" || p.StagingDir == "" {
		return fmt.Errorf("producer inputDir and stagingDir are required")
	}
	if filepath.Clean(p.InputDir) == filepath.Clean(p.StagingDir) {
		return fmt.Errorf("producer stagingDir (%s) must differ from inputDir, staged images would be scanned again", p.StagingDir)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("producer timeout must be > 0, got %v", p.Timeout)
	}
	if p.ChunkSize <= 0 || p.ChunkSize > maxChunkSize {
		return fmt.Errorf("producer chunkSize must be in (0, %d], got %d", maxChunkSize, p.ChunkSize)
	}
	if p.StatusInterval <= 0 {
		return fmt.Errorf("producer statusInterval must be > 0, got %v", p.StatusInterval)
	}
	if p.PublishRate < 0 {
		return fmt.Errorf("producer publishRate must be >= 0, got %v", p.PublishRate)
	}
	if p.SettleWindow < 0 {
		return fmt.Errorf("producer settleWindow must be >= 0, got %v", p.SettleWindow)
	}
	if p.ShutdownGrace <= 0 {
		return fmt.Errorf("producer shutdownGrace must be > 0, got %v", p.ShutdownGrace)
	}
	if cfg.ShutdownTimeout <= p.ShutdownGrace {
		return fmt.Errorf("shutdownTimeout (%v) must exceed producer shutdownGrace (%v), the final flush would outlive Stop",
			cfg.ShutdownTimeout, p.ShutdownGrace)
	}

	c := cfg.Consumer
	if c.OutputDir == "" || c.ConfigLogPath == "" || c.TimeoutFile == "" {
		return fmt.Errorf("consumer outputDir, configLogPath and timeoutFile are required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("consumer pollInterval must be > 0, got %v", c.PollInterval)
	}

	if cfg.Lock.Retries < 1 {
		return fmt.Errorf("lock retries must be >= 1, got %d", cfg.Lock.Retries)
	}
	if cfg.Lock.RetryDelay < 0 {
		return fmt.Errorf("lock retryDelay must be >= 0, got %v", cfg.Lock.RetryDelay)
	}

	return nil
}

// ValidateWithWarnings checks configuration and logs warnings for non-recommended values.
//
// This is called after Validate() in NewProducer() and NewConsumer() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Producer.Timeout < 500*time.Millisecond {
		logger.Warn(
			"producer timeout is very short, pages of one document may be split",
			"timeout", cfg.Producer.Timeout,
			"recommended", "1s or higher",
		)
	}

	if cfg.Producer.StatusInterval > 10*cfg.Producer.Timeout {
		logger.Warn(
			"status interval is much longer than the inactivity timeout",
			"statusInterval", cfg.Producer.StatusInterval,
			"timeout", cfg.Producer.Timeout,
		)
	}

	if cfg.Producer.PublishRate > 0 && cfg.Producer.PublishRate < 10 {
		logger.Warn(
			"publish rate is very low, large documents will take long to send",
			"publishRate", cfg.Producer.PublishRate,
		)
	}

	if filepath.Dir(filepath.Clean(cfg.Consumer.TimeoutFile)) == filepath.Clean(cfg.Consumer.OutputDir) {
		logger.Warn(
			"timeout file lives in the output directory and shifts result file numbering",
			"timeoutFile", cfg.Consumer.TimeoutFile,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Test timings are 10-100x faster than production defaults. Directories are
// left at their defaults; tests point them at t.TempDir().
//
// Returns:
//   - Config: Configuration with fast timings for tests
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Producer.Timeout = 300 * time.Millisecond        // 16x faster
	cfg.Producer.StatusInterval = 100 * time.Millisecond // 100x faster
	cfg.Consumer.PollInterval = 20 * time.Millisecond    // 50x faster
	cfg.Lock.RetryDelay = 20 * time.Millisecond          // 250x faster
	cfg.Producer.ShutdownGrace = 2 * time.Second
	cfg.Producer.SettleWindow = 20 * time.Millisecond
	cfg.OperationTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 5 * time.Second

	return cfg
}

// LoadConfig reads a YAML configuration file, applies defaults and validates it.
//
// Parameters:
//   - path: YAML file path
//
// Returns:
//   - Config: Loaded configuration
//   - error: Read, parse or validation error
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing %s: %w", ErrInvalidConfig, path, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
