package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/straja-ai/triage/internal/reputation"
	"github.com/straja-ai/triage/internal/rules"
)

// Config holds triage configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Rules      RulesConfig      `yaml:"rules"`
	Reputation ReputationConfig `yaml:"reputation"`
	Judge      JudgeConfig      `yaml:"judge"`
	Extract    ExtractConfig    `yaml:"extract"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Escalation EscalationConfig `yaml:"escalation"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	NATS       NATSConfig       `yaml:"nats"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`           // HTTP listen address, e.g. ":8080"
	MaxBodyBytes int64  `yaml:"max_body_bytes"` // request body limit
	MaxBatch     int    `yaml:"max_batch"`      // inputs per /v1/classify/batch call

	// Clients, when set, require a bearer key on /v1 routes.
	Clients []ClientConfig `yaml:"clients"`
}

// ClientConfig names an API caller and the keys it may present.
type ClientConfig struct {
	Name      string   `yaml:"name"`
	APIKeys   []string `yaml:"api_keys"`
	APIKeyEnv string   `yaml:"api_key_env"`
}

// Keys returns the configured keys plus the one in APIKeyEnv, if set.
func (c ClientConfig) Keys() []string {
	keys := make([]string, 0, len(c.APIKeys)+1)
	for _, k := range c.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if env := strings.TrimSpace(c.APIKeyEnv); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace | debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// RulesConfig points at an optional rule file. Thresholds and judgment
// bands set here override whatever the rule file carries.
type RulesConfig struct {
	Path          string               `yaml:"path"`
	Thresholds    rules.Thresholds    `yaml:"thresholds"`
	JudgmentBands rules.JudgmentBands `yaml:"judgment_bands"`
}

// ReputationConfig replaces the built-in reputation lists per field when set.
type ReputationConfig struct {
	KnownBadHashes       []string `yaml:"known_bad_hashes"`
	KnownGoodHashes      []string `yaml:"known_good_hashes"`
	SuspiciousIPs        []string `yaml:"suspicious_ips"`
	BlacklistedAddresses []string `yaml:"blacklisted_addresses"`
	RiskyExtensions      []string `yaml:"risky_extensions"`
	SafeExtensions       []string `yaml:"safe_extensions"`
	CacheSize            int      `yaml:"cache_size"`
}

type JudgeConfig struct {
	Provider             string `yaml:"provider"` // none | openai | azure | onnx | fake
	BaseURL              string `yaml:"base_url"`
	APIKeyEnv            string `yaml:"api_key_env"` // e.g. "OPENAI_API_KEY"
	APIKey               string `yaml:"api_key"`
	Model                string `yaml:"model"`
	Deployment           string `yaml:"deployment"` // azure deployment name
	BundleDir            string `yaml:"bundle_dir"` // onnx model bundle
	TimeoutMs            int    `yaml:"timeout_ms"`
	MaxTextChars         int    `yaml:"max_text_chars"`
	CacheSize            int    `yaml:"cache_size"`
	MaxResponseBytes     int64  `yaml:"max_response_bytes"`
	AllowPrivateNetworks bool   `yaml:"allow_private_networks"`
}

type ExtractConfig struct {
	NetworkByteThreshold int64   `yaml:"network_byte_threshold"`
	BotnetConnections    int     `yaml:"botnet_connections"`
	LaunderingAmount     float64 `yaml:"laundering_amount"`
	LaunderingFrequency  int     `yaml:"laundering_frequency"`
	LargeAmount          float64 `yaml:"large_amount"`
}

type ClassifierConfig struct {
	Parallel int `yaml:"parallel"`
}

type EscalationConfig struct {
	QueueSize         int          `yaml:"queue_size"`
	Workers           int          `yaml:"workers"`
	ShutdownTimeoutMs int          `yaml:"shutdown_timeout_ms"`
	Sinks             []SinkConfig `yaml:"sinks"`
}

type SinkConfig struct {
	Type                 string            `yaml:"type"` // file_jsonl | webhook | nats
	Path                 string            `yaml:"path"`
	URL                  string            `yaml:"url"`
	Headers              map[string]string `yaml:"headers"`
	TimeoutMs            int               `yaml:"timeout_ms"`
	Subject              string            `yaml:"subject"`
	AllowPrivateNetworks bool              `yaml:"allow_private_networks"`
}

type MonitorConfig struct {
	IntervalMs int    `yaml:"interval_ms"`
	Source     string `yaml:"source"` // synthetic
	Seed       int64  `yaml:"seed"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 8 << 20
	}
	if cfg.Server.MaxBatch <= 0 {
		cfg.Server.MaxBatch = 1000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Reputation.CacheSize <= 0 {
		cfg.Reputation.CacheSize = 4096
	}

	if cfg.Judge.Provider == "" {
		cfg.Judge.Provider = "none"
	}
	cfg.Judge.Provider = strings.ToLower(strings.TrimSpace(cfg.Judge.Provider))
	if cfg.Judge.TimeoutMs <= 0 {
		cfg.Judge.TimeoutMs = 15000
	}
	if cfg.Judge.MaxTextChars <= 0 {
		cfg.Judge.MaxTextChars = 3000
	}
	if cfg.Judge.CacheSize < 0 {
		cfg.Judge.CacheSize = 0
	}
	if cfg.Judge.MaxResponseBytes <= 0 {
		cfg.Judge.MaxResponseBytes = 1 << 20
	}

	if cfg.Extract.NetworkByteThreshold <= 0 {
		cfg.Extract.NetworkByteThreshold = 1_000_000
	}
	if cfg.Extract.BotnetConnections <= 0 {
		cfg.Extract.BotnetConnections = 5
	}
	if cfg.Extract.LaunderingAmount <= 0 {
		cfg.Extract.LaunderingAmount = 10_000
	}
	if cfg.Extract.LaunderingFrequency <= 0 {
		cfg.Extract.LaunderingFrequency = 10
	}
	if cfg.Extract.LargeAmount <= 0 {
		cfg.Extract.LargeAmount = 5_000
	}

	if cfg.Classifier.Parallel <= 0 {
		cfg.Classifier.Parallel = 8
	}

	if cfg.Escalation.QueueSize <= 0 {
		cfg.Escalation.QueueSize = 1000
	}
	if cfg.Escalation.Workers <= 0 {
		cfg.Escalation.Workers = 2
	}
	if cfg.Escalation.ShutdownTimeoutMs <= 0 {
		cfg.Escalation.ShutdownTimeoutMs = 2000
	}

	if cfg.Monitor.IntervalMs <= 0 {
		cfg.Monitor.IntervalMs = 5000
	}
	if cfg.Monitor.Source == "" {
		cfg.Monitor.Source = "synthetic"
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}

// Timeout returns the per-call judge deadline.
func (j JudgeConfig) Timeout() time.Duration {
	return time.Duration(j.TimeoutMs) * time.Millisecond
}

// ResolveAPIKey prefers the environment variable named by api_key_env.
func (j JudgeConfig) ResolveAPIKey() string {
	if j.APIKeyEnv != "" {
		if v := strings.TrimSpace(os.Getenv(j.APIKeyEnv)); v != "" {
			return v
		}
	}
	return j.APIKey
}

func (e EscalationConfig) ShutdownTimeout() time.Duration {
	return time.Duration(e.ShutdownTimeoutMs) * time.Millisecond
}

func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMs) * time.Millisecond
}

// Lists merges configured reputation data over the built-in lists.
func (r ReputationConfig) Lists() reputation.Lists {
	l := reputation.DefaultLists()
	if len(r.KnownBadHashes) > 0 {
		l.KnownBadHashes = r.KnownBadHashes
	}
	if len(r.KnownGoodHashes) > 0 {
		l.KnownGoodHashes = r.KnownGoodHashes
	}
	if len(r.SuspiciousIPs) > 0 {
		l.SuspiciousIPs = r.SuspiciousIPs
	}
	if len(r.BlacklistedAddresses) > 0 {
		l.BlacklistedAddresses = r.BlacklistedAddresses
	}
	if len(r.RiskyExtensions) > 0 {
		l.RiskyExtensions = r.RiskyExtensions
	}
	if len(r.SafeExtensions) > 0 {
		l.SafeExtensions = r.SafeExtensions
	}
	return l
}

// LoadRules builds the rule tables: the rule file when a path is set, the
// built-in catalog otherwise, then threshold and band overrides.
func (r RulesConfig) LoadRules() (*rules.Tables, error) {
	var (
		t   *rules.Tables
		err error
	)
	if strings.TrimSpace(r.Path) != "" {
		t, err = rules.Load(r.Path)
		if err != nil {
			return nil, err
		}
	} else {
		t = rules.Default()
	}
	return t.WithOverrides(r.Thresholds, r.JudgmentBands)
}
