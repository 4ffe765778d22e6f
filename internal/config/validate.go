package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/straja-ai/triage/internal/rules"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}

	for i, c := range cfg.Server.Clients {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("server.clients[%d].name must be set", i)
		}
		if len(c.APIKeys) == 0 && strings.TrimSpace(c.APIKeyEnv) == "" {
			return fmt.Errorf("server.clients[%d] (%s) needs api_keys or api_key_env", i, c.Name)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}

	if err := validateRulesConfig(cfg.Rules); err != nil {
		return err
	}

	if err := validateJudgeConfig(cfg.Judge); err != nil {
		return err
	}

	if cfg.Classifier.Parallel < 0 {
		return fmt.Errorf("classifier.parallel must be positive, got %d", cfg.Classifier.Parallel)
	}

	if err := validateEscalationConfig(cfg.Escalation, cfg.NATS); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Monitor.Source)) {
	case "", "synthetic":
	default:
		return fmt.Errorf("monitor.source must be synthetic, got %q", cfg.Monitor.Source)
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateRulesConfig(r RulesConfig) error {
	if r.Thresholds != (rules.Thresholds{}) {
		if err := r.Thresholds.Validate(); err != nil {
			return fmt.Errorf("rules.thresholds: %w", err)
		}
	}
	if r.JudgmentBands != (rules.JudgmentBands{}) {
		if err := r.JudgmentBands.Validate(); err != nil {
			return fmt.Errorf("rules.judgment_bands: %w", err)
		}
	}
	return nil
}

func validateJudgeConfig(j JudgeConfig) error {
	switch j.Provider {
	case "none", "fake":
		return nil
	case "openai":
		if strings.TrimSpace(j.APIKeyEnv) == "" && strings.TrimSpace(j.APIKey) == "" {
			return errors.New("judge provider openai missing api key (env or api_key)")
		}
	case "azure":
		if strings.TrimSpace(j.BaseURL) == "" {
			return errors.New("judge provider azure needs base_url (resource endpoint)")
		}
		if strings.TrimSpace(j.Deployment) == "" {
			return errors.New("judge provider azure needs deployment")
		}
		if strings.TrimSpace(j.APIKeyEnv) == "" && strings.TrimSpace(j.APIKey) == "" {
			return errors.New("judge provider azure missing api key (env or api_key)")
		}
	case "onnx":
		if strings.TrimSpace(j.BundleDir) == "" {
			return errors.New("judge provider onnx needs bundle_dir")
		}
		return nil
	default:
		return fmt.Errorf("judge.provider must be none, openai, azure, onnx or fake, got %q", j.Provider)
	}

	if j.BaseURL != "" {
		if err := validateHTTPURL(j.BaseURL, j.AllowPrivateNetworks); err != nil {
			return fmt.Errorf("judge base_url: %w", err)
		}
	}
	return nil
}

func validateEscalationConfig(e EscalationConfig, n NATSConfig) error {
	for i, s := range e.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("escalation sink %d (file_jsonl) missing path", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("escalation sink %d (webhook) missing url", i)
			}
			if err := validateHTTPURL(s.URL, s.AllowPrivateNetworks); err != nil {
				return fmt.Errorf("escalation sink %d (webhook) url: %w", i, err)
			}
		case "nats":
			if strings.TrimSpace(s.Subject) == "" {
				return fmt.Errorf("escalation sink %d (nats) missing subject", i)
			}
			if strings.TrimSpace(n.URL) == "" && strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("escalation sink %d (nats) needs nats.url or a sink url", i)
			}
		default:
			return fmt.Errorf("escalation sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func validateHTTPURL(raw string, allowPrivate bool) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be http or https")
	}
	if err := blockPrivateHost(u.Host, allowPrivate); err != nil {
		return fmt.Errorf("blocked: %w", err)
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if strings.Contains(hostport, "]") || strings.Contains(hostport, ":") {
		h, _, err := net.SplitHostPort(hostport)
		if err == nil {
			host = h
		}
	}
	lc := strings.ToLower(strings.TrimSpace(host))
	if lc == "localhost" {
		return errors.New("private network host localhost blocked for SSRF safety")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("private network IP %s blocked for SSRF safety", ip.String())
		}
		return nil
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	privateBlocks := []*net.IPNet{
		{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
		{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
		{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
		{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
		{IP: net.ParseIP("169.254.0.0"), Mask: net.CIDRMask(16, 32)},
		{IP: net.ParseIP("::1"), Mask: net.CIDRMask(128, 128)},
		{IP: net.ParseIP("fc00::"), Mask: net.CIDRMask(7, 128)},
		{IP: net.ParseIP("fe80::"), Mask: net.CIDRMask(10, 128)},
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
