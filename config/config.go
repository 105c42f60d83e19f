package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Connector Connector     `yaml:"connector"`
	Channels  Channels      `yaml:"channels"`
	Reader    Reader        `yaml:"reader"`
	Source    Source        `yaml:"source"`
	Logging   LoggingConfig `yaml:"logging"`
	Metrics   Metrics       `yaml:"metrics"`
}

type Connector struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type Channels struct {
	DiffBuffer     int `yaml:"diff_buffer"`
	TradeBuffer    int `yaml:"trade_buffer"`
	SnapshotBuffer int `yaml:"snapshot_buffer"`
	UserBuffer     int `yaml:"user_buffer"`
}

type Reader struct {
	Timeout        time.Duration  `yaml:"timeout"`
	ConnectionPool ConnectionPool `yaml:"connection_pool"`
}

type ConnectionPool struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type Source struct {
	IndependentReserve IndependentReserve `yaml:"independentreserve"`
}

// IndependentReserve holds everything needed to talk to one deployment
// region of the exchange. Domain selects the endpoint host ("com" or "us").
type IndependentReserve struct {
	Domain       string         `yaml:"domain"`
	RestURL      string         `yaml:"rest_url"`
	WssURL       string         `yaml:"wss_url"`
	TradingPairs []string       `yaml:"trading_pairs"`
	Snapshot     SnapshotConfig `yaml:"snapshot"`
	Stream       StreamConfig   `yaml:"stream"`
	Credentials  Credentials    `yaml:"-"`
}

type SnapshotConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Depth      int           `yaml:"depth"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type StreamConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
}

// Credentials are only ever read from the environment, never from the
// yaml file, so that config files can be committed safely.
type Credentials struct {
	APIKey    string
	APISecret string
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type Metrics struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Region     string `yaml:"region"`
	Namespace  string `yaml:"namespace"`
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels: Channels{
			DiffBuffer:     1000,
			TradeBuffer:    1000,
			SnapshotBuffer: 100,
			UserBuffer:     100,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ir := &config.Source.IndependentReserve
	if ir.Domain == "" {
		ir.Domain = "com"
	}
	if ir.RestURL == "" {
		ir.RestURL = "https://api.independentreserve.%s"
	}
	if ir.WssURL == "" {
		ir.WssURL = "wss://websockets.independentreserve.%s"
	}
	if ir.Snapshot.Interval <= 0 {
		ir.Snapshot.Interval = time.Hour
	}
	if ir.Snapshot.RetryDelay <= 0 {
		ir.Snapshot.RetryDelay = 5 * time.Second
	}
	if ir.Snapshot.Depth <= 0 {
		ir.Snapshot.Depth = 1000
	}
	if ir.Stream.HeartbeatInterval <= 0 {
		ir.Stream.HeartbeatInterval = 30 * time.Second
	}
	if ir.Stream.ReconnectDelay <= 0 {
		ir.Stream.ReconnectDelay = 5 * time.Second
	}

	// Credentials come from the environment only
	ir.Credentials.APIKey = strings.TrimSpace(os.Getenv("IR_API_KEY"))
	ir.Credentials.APISecret = strings.TrimSpace(os.Getenv("IR_API_SECRET"))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Connector.Name == "" {
		return fmt.Errorf("connector.name is required")
	}

	if cfg.Connector.Version == "" {
		return fmt.Errorf("connector.version is required")
	}

	if cfg.Channels.DiffBuffer <= 0 {
		return fmt.Errorf("channels.diff_buffer must be greater than 0")
	}
	if cfg.Channels.TradeBuffer <= 0 {
		return fmt.Errorf("channels.trade_buffer must be greater than 0")
	}
	if cfg.Channels.SnapshotBuffer <= 0 {
		return fmt.Errorf("channels.snapshot_buffer must be greater than 0")
	}

	ir := cfg.Source.IndependentReserve
	if ir.Domain != "com" && ir.Domain != "us" {
		return fmt.Errorf("source.independentreserve.domain must be 'com' or 'us', got '%s'", ir.Domain)
	}
	if len(ir.TradingPairs) == 0 {
		return fmt.Errorf("source.independentreserve.trading_pairs is required")
	}
	for _, pair := range ir.TradingPairs {
		if !isValidTradingPair(pair) {
			return fmt.Errorf("trading pair '%s' is invalid, expected '<Primary>-<Secondary>'", pair)
		}
	}

	return nil
}

var tradingPairRegexp = regexp.MustCompile(`^[A-Za-z0-9]+-[A-Za-z0-9]+$`)

func isValidTradingPair(pair string) bool {
	return tradingPairRegexp.MatchString(pair)
}
