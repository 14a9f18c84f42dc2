package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ValidationReport carries non-fatal warnings surfaced at startup.
type ValidationReport struct {
	Warnings []string
}

// Validate checks the LLM endpoint configuration is usable.
func (c LLMConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	parsed, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", c.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url %q is missing a host", c.URL)
	}
	return nil
}

// ValidateStartup validates startup configuration and returns warnings that
// don't prevent use (e.g. no API key set for a remote endpoint).
func ValidateStartup(cfg *Config) (*ValidationReport, error) {
	report := &ValidationReport{}

	if err := cfg.LLM.Validate(); err != nil {
		return report, fmt.Errorf("llm: %w", err)
	}

	parsed, _ := url.Parse(cfg.LLM.URL)
	if parsed != nil && parsed.Host != "127.0.0.1:11434" && parsed.Hostname() != "localhost" && parsed.Hostname() != "127.0.0.1" && cfg.LLM.APIKey == "" {
		report.Warnings = append(report.Warnings, "llm.api_key is empty for a non-local endpoint")
	}

	if cfg.Runtime.LocalRunner != "" {
		if _, err := lookRunner(cfg.Runtime.LocalRunner); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("runtime.local_runner %q: %v", cfg.Runtime.LocalRunner, err))
		}
	}

	return report, nil
}
