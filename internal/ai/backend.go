// Package ai provides the reasoning providers that speak for participants:
// a scripted provider for simulations and tests, and an OpenAI-backed one.
package ai

import (
	"fmt"
	"os"
	"strings"

	"github.com/roundtable-games/roundtable/internal/config"
	"github.com/roundtable-games/roundtable/internal/logging"
	"github.com/roundtable-games/roundtable/internal/orchestrator"
)

// BackendName identifies a supported provider backend.
type BackendName string

const (
	BackendScripted BackendName = "scripted"
	BackendOpenAI   BackendName = "openai"
)

// ErrUnknownBackend is returned when the configured backend is unsupported.
var ErrUnknownBackend = fmt.Errorf("unknown provider backend")

// ErrMissingAPIKey is returned when the OpenAI backend has no key.
var ErrMissingAPIKey = fmt.Errorf("missing API key")

// NewFromConfig builds the provider selected by cfg.Provider.Backend,
// rate limited when requests_per_second is positive.
func NewFromConfig(cfg *config.Config, logger *logging.Logger) (orchestrator.ReasoningProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing config")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	pc := cfg.Provider

	var provider orchestrator.ReasoningProvider
	switch BackendName(strings.ToLower(pc.Backend)) {
	case BackendScripted, "":
		provider = NewScripted(ScriptedOptions{FailureRate: pc.FailureRate})
	case BackendOpenAI:
		key := os.Getenv(pc.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, pc.APIKeyEnv)
		}
		provider = NewOpenAIProvider(key, pc, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, pc.Backend)
	}

	if pc.RequestsPerSecond > 0 {
		provider = NewRateLimited(provider, pc.RequestsPerSecond, pc.Burst)
	}
	logger.Info("reasoning provider ready", "backend", pc.Backend, "rps", pc.RequestsPerSecond)
	return provider, nil
}
