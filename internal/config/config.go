// Package config loads Central runtime configuration from a TOML file and
// environment variables, exposing typed structs and accessors for the LLM
// endpoint, runtime sampling knobs, and session storage roots.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/shlex"
	"github.com/spf13/viper"

	"github.com/nox-kernel/central/internal/store"
)

// DefaultURL is the canonical default endpoint when nothing else is
// configured: a local Ollama chat daemon.
const DefaultURL = "http://127.0.0.1:11434/api/chat"

// Config is the runtime configuration loaded from defaults, config.toml, and
// environment variables.
type Config struct {
	// HomeDir is runtime-resolved from CENTRAL_HOME and not read from config.
	HomeDir string        `mapstructure:"-"`
	LLM      LLMConfig     `mapstructure:"llm"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Session  SessionConfig `mapstructure:"session"`
}

// LLMConfig configures the primary model endpoint.
type LLMConfig struct {
	URL            string        `mapstructure:"url"`
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	TargetModel    string        `mapstructure:"target_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Stream         bool          `mapstructure:"stream"`
	Sanitize       bool          `mapstructure:"sanitize"`
	StripReasoning bool          `mapstructure:"strip_reasoning"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RuntimeConfig holds the process-transport and Ollama sampling knobs read
// from NOX_* environment variables (§6 of the original specification).
type RuntimeConfig struct {
	LocalRunner      string   `mapstructure:"local_runner"`
	ModelPath        string   `mapstructure:"model_path"`
	LocalRunnerArgs  []string `mapstructure:"-"`
	NumThreads       int      `mapstructure:"num_threads"`
	NumThreadsCap    int      `mapstructure:"num_threads_cap"`
	NumCtx           int      `mapstructure:"num_ctx"`
	NumBatch         int      `mapstructure:"num_batch"`
	KeepAlive        string   `mapstructure:"keep_alive"`
}

// SessionConfig locates the on-disk session archive.
type SessionConfig struct {
	Root        string `mapstructure:"root"`
	ArchiveRoot string `mapstructure:"archive_root"`
}

// RuntimeCandidate is one entry in the ordered fallback ladder: a
// (url, model, apiKey, label) tuple.
type RuntimeCandidate struct {
	URL    string
	Model  string
	APIKey string
	Label  string
}

var defaultConfig = Config{
	LLM: LLMConfig{
		URL:            DefaultURL,
		Model:          "llama3",
		Temperature:    0.7,
		MaxTokens:      1024,
		Stream:         true,
		Sanitize:       true,
		StripReasoning: true,
		RequestTimeout: 120 * time.Second,
	},
	Runtime: RuntimeConfig{
		NumThreadsCap: 0,
	},
	Session: SessionConfig{
		Root:        filepath.Join("memory", "sessions"),
		ArchiveRoot: filepath.Join("memory", "early-archives"),
	},
}

// HomeDir returns the Central home directory, where config.toml lives.
// Uses CENTRAL_HOME env var if set, otherwise defaults to ~/.central.
func HomeDir() (string, error) {
	if dir := os.Getenv("CENTRAL_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".central"), nil
}

// Load merges hardcoded defaults, config.toml, and environment variables in
// that order. Environment variables named in the external-interfaces table
// always win over the file.
func Load() (*Config, error) {
	homeDir, err := HomeDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filepath.Join(homeDir, store.ConfigFilePath))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)

	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HomeDir = homeDir

	if args, err := shlex.Split(os.Getenv("CENTRAL_LOCAL_RUNNER_ARGS")); err == nil {
		cfg.Runtime.LocalRunnerArgs = args
	}

	return &cfg, nil
}

// Write writes the merged configuration (defaults overlaid by file) to w in
// TOML format.
func Write(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}

	homeDir, err := HomeDir()
	if err != nil {
		return err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filepath.Join(homeDir, store.ConfigFilePath))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	// Keep the duration field human-readable in generated TOML.
	v.Set("llm.request_timeout", v.GetDuration("llm.request_timeout").String())

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.url", defaultConfig.LLM.URL)
	v.SetDefault("llm.model", defaultConfig.LLM.Model)
	v.SetDefault("llm.api_key", defaultConfig.LLM.APIKey)
	v.SetDefault("llm.target_model", defaultConfig.LLM.TargetModel)
	v.SetDefault("llm.temperature", defaultConfig.LLM.Temperature)
	v.SetDefault("llm.max_tokens", defaultConfig.LLM.MaxTokens)
	v.SetDefault("llm.stream", defaultConfig.LLM.Stream)
	v.SetDefault("llm.sanitize", defaultConfig.LLM.Sanitize)
	v.SetDefault("llm.strip_reasoning", defaultConfig.LLM.StripReasoning)
	v.SetDefault("llm.request_timeout", defaultConfig.LLM.RequestTimeout)

	v.SetDefault("runtime.local_runner", defaultConfig.Runtime.LocalRunner)
	v.SetDefault("runtime.model_path", defaultConfig.Runtime.ModelPath)
	v.SetDefault("runtime.num_threads", defaultConfig.Runtime.NumThreads)
	v.SetDefault("runtime.num_threads_cap", defaultConfig.Runtime.NumThreadsCap)
	v.SetDefault("runtime.num_ctx", defaultConfig.Runtime.NumCtx)
	v.SetDefault("runtime.num_batch", defaultConfig.Runtime.NumBatch)
	v.SetDefault("runtime.keep_alive", defaultConfig.Runtime.KeepAlive)

	v.SetDefault("session.root", defaultConfig.Session.Root)
	v.SetDefault("session.archive_root", defaultConfig.Session.ArchiveRoot)
}

// bindEnv wires the environment variables named in the external-interfaces
// table directly onto config keys, so they override config.toml regardless
// of whether expandEnvStringHook would also have expanded a literal $VAR.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("llm.url", "CENTRAL_LLM_URL")
	_ = v.BindEnv("llm.model", "CENTRAL_LLM_MODEL")
	_ = v.BindEnv("llm.api_key", "CENTRAL_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.target_model", "CENTRAL_TARGET_MODEL")

	_ = v.BindEnv("runtime.local_runner", "NOX_LOCAL_RUNNER")
	_ = v.BindEnv("runtime.model_path", "NOX_MODEL_PATH")
	_ = v.BindEnv("runtime.num_threads", "NOX_NUM_THREADS")
	_ = v.BindEnv("runtime.num_threads_cap", "NOX_NUM_THREADS_CAP")
	_ = v.BindEnv("runtime.num_ctx", "NOX_NUM_CTX", "NOX_CONTEXT_LENGTH", "NOX_CONTEXT_LEN", "OLLAMA_CONTEXT_LENGTH")
	_ = v.BindEnv("runtime.num_batch", "NOX_NUM_BATCH")
	_ = v.BindEnv("runtime.keep_alive", "NOX_KEEP_ALIVE", "NOX_OLLAMA_KEEP_ALIVE", "OLLAMA_KEEP_ALIVE")
}

// FallbackLadder builds the ordered runtime-candidate list the CLI walks on
// startup: the configured primary, CSV-separated fallbacks from env, and a
// final local fallback.
func FallbackLadder(cfg *Config) []RuntimeCandidate {
	candidates := []RuntimeCandidate{{
		URL:    cfg.LLM.URL,
		Model:  cfg.LLM.Model,
		APIKey: cfg.LLM.APIKey,
		Label:  "primary",
	}}

	urls := splitCSV(os.Getenv("CENTRAL_LLM_FALLBACK_URLS"))
	models := splitCSV(os.Getenv("CENTRAL_LLM_FALLBACK_MODELS"))
	keys := splitCSV(os.Getenv("CENTRAL_LLM_FALLBACK_API_KEYS"))

	for i, url := range urls {
		c := RuntimeCandidate{URL: url, Label: fmt.Sprintf("fallback-%d", i+1)}
		if i < len(models) {
			c.Model = models[i]
		} else {
			c.Model = cfg.LLM.Model
		}
		if i < len(keys) {
			c.APIKey = keys[i]
		}
		candidates = append(candidates, c)
	}

	localURL := os.Getenv("CENTRAL_LOCAL_LLM_URL")
	if localURL != "" {
		localModel := os.Getenv("CENTRAL_LOCAL_LLM_MODEL")
		if localModel == "" {
			localModel = cfg.LLM.Model
		}
		candidates = append(candidates, RuntimeCandidate{
			URL:   localURL,
			Model: localModel,
			Label: "local",
		})
	}

	return candidates
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultUserConfigTOML renders a minimal bootstrap user config as TOML.
func DefaultUserConfigTOML() (string, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.Set("llm.url", DefaultURL)
	v.Set("llm.model", defaultConfig.LLM.Model)
	v.Set("llm.api_key", "$OPENAI_API_KEY")
	v.Set("llm.request_timeout", defaultConfig.LLM.RequestTimeout.String())

	var out bytes.Buffer
	if err := v.WriteConfigTo(&out); err != nil {
		return "", fmt.Errorf("write default user config: %w", err)
	}
	return out.String(), nil
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}
