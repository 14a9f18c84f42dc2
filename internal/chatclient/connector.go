package chatclient

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nox-kernel/central/internal/config"
	"github.com/nox-kernel/central/internal/costs"
	"github.com/nox-kernel/central/internal/payload"
	"github.com/nox-kernel/central/internal/session"
	"github.com/nox-kernel/central/internal/transport"
)

// DefaultConnectTimeout is the per-candidate connectivity probe budget used
// by the CLI's fallback ladder walk.
const DefaultConnectTimeout = time.Second

// ErrNoRuntimeReachable is returned by Connect when every candidate in the
// fallback ladder failed its connectivity check. The CLI maps this to a
// distinguished non-zero exit code.
var ErrNoRuntimeReachable = errors.New("no configured runtime is reachable")

// BuildTransport selects the wire transport for candidate: a local
// subprocess runner when one is configured, otherwise HTTP against
// candidate's URL. Mirrors the original connector's dispatch — a local
// runner always wins because it has no network endpoint to race against.
func BuildTransport(cfg *config.Config, candidate config.RuntimeCandidate) transport.Transport {
	if cfg.Runtime.LocalRunner != "" {
		return &transport.ProcessTransport{
			Binary:    cfg.Runtime.LocalRunner,
			ModelPath: cfg.Runtime.ModelPath,
			ExtraArgs: cfg.Runtime.LocalRunnerArgs,
		}
	}
	return transport.NewHTTPTransport(candidate.URL, candidate.APIKey, nil)
}

// ConfigFor projects cfg plus a resolved runtime candidate into the Config
// shape New expects.
func ConfigFor(cfg *config.Config, candidate config.RuntimeCandidate) Config {
	return Config{
		URL:            candidate.URL,
		Model:          candidate.Model,
		APIKey:         candidate.APIKey,
		TargetModelEnv: cfg.LLM.TargetModel,
		OpenAIModelEnv: os.Getenv("CENTRAL_OPENAI_MODEL"),
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Stream:         cfg.LLM.Stream,
		Sanitize:       cfg.LLM.Sanitize,
		StripReasoning: cfg.LLM.StripReasoning,
	}
}

// providerLabelFor names a candidate's provider for the costs ledger
// (matching costs.EstimateUSD's provider switch) rather than the ladder
// position label ("primary", "fallback-1", ...), so Spend/SpendByProvider
// can tell which backend actually answered regardless of which rung of the
// ladder it was reached at.
func providerLabelFor(cfg *config.Config, candidate config.RuntimeCandidate) string {
	if cfg.Runtime.LocalRunner != "" {
		return "local"
	}
	switch payload.KindForURL(candidate.URL) {
	case payload.KindOllamaChat, payload.KindOllamaGenerate:
		return "ollama"
	default:
		return "openai"
	}
}

// Connect walks cfg's runtime fallback ladder (the configured primary, then
// any env-CSV fallbacks, then a final local fallback) constructing a Client
// per candidate and probing connectivity. The first reachable candidate's
// Client is returned; unreachable candidates have their (necessarily empty)
// session deleted before the next candidate is tried. An error is returned
// only once every candidate has failed. When tracker is non-nil, the
// returned Client is wired to record usage under the resolved candidate's
// own provider label, not a fixed one — whichever rung of the ladder
// answers is the one billed.
func Connect(cfg *config.Config, timeout time.Duration, tracker *costs.Tracker, opts ...Option) (*Client, string, error) {
	candidates := config.FallbackLadder(cfg)
	var errs []error

	for _, candidate := range candidates {
		tr := BuildTransport(cfg, candidate)
		candidateOpts := append([]Option(nil), opts...)
		if tracker != nil {
			candidateOpts = append(candidateOpts, WithCosts(tracker, providerLabelFor(cfg, candidate)))
		}
		var logger *session.Logger
		if root := cfg.ResolvedSessionRoot(); root != "" {
			logger = session.NewLogger(root, candidate.Model, cfg.LLM.Sanitize)
			candidateOpts = append(candidateOpts, WithLogger(logger))
		}

		client := New(ConfigFor(cfg, candidate), tr, candidateOpts...)
		if err := client.CheckConnectivity(timeout); err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", candidate.Label, candidate.URL, err))
			if logger != nil {
				_, _ = client.MaybeDeleteEmptySession()
			}
			continue
		}
		return client, candidate.Label, nil
	}

	return nil, "", fmt.Errorf("%w: %w", ErrNoRuntimeReachable, joinErrors(errs))
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("no candidates configured")
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
