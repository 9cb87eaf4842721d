package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/config"
	"github.com/DiegoLerma/AzureHandsOnLab/internal/observe"
	"github.com/DiegoLerma/AzureHandsOnLab/internal/resilience"
)

// BuildProviders instantiates the providers named in cfg using the registry.
// Each kind is wrapped in a resilience fallback chain, primary first, so every
// backend gets its own circuit breaker and readiness can be derived from them.
// Any provider that cannot be created is a configuration error. Breaker
// transitions are counted in m, or in [observe.DefaultMetrics] when m is nil.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
			HalfOpenMax:  cfg.Resilience.HalfOpenMax,
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
	ps := &Providers{}

	primary := cfg.Providers.LLM
	lp, err := reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", primary.Name, err)
	}
	llmChain := resilience.NewLLMFallback(lp, entryLabel(primary), fbCfg)
	slog.Info("provider created", "kind", "llm", "name", primary.Name, "model", primary.Model)
	for i, entry := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %d (%q): %w", i, entry.Name, err)
		}
		llmChain.AddFallback(entryLabel(entry), p)
		slog.Info("fallback provider created", "kind", "llm", "name", entry.Name, "position", i+1)
	}
	ps.LLM, ps.LLMName = llmChain, primary.Name

	if primary := cfg.Providers.TTS; primary.Name != "" {
		tp, err := reg.CreateTTS(primary)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", primary.Name, err)
		}
		ttsChain := resilience.NewTTSFallback(tp, entryLabel(primary), fbCfg)
		slog.Info("provider created", "kind", "tts", "name", primary.Name)
		for i, entry := range cfg.Providers.TTSFallbacks {
			p, err := reg.CreateTTS(entry)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %d (%q): %w", i, entry.Name, err)
			}
			ttsChain.AddFallback(entryLabel(entry), p)
			slog.Info("fallback provider created", "kind", "tts", "name", entry.Name, "position", i+1)
		}
		ps.TTS, ps.TTSName = ttsChain, primary.Name
	}

	return ps, nil
}

// entryLabel names a circuit breaker after the provider and, when set, its model.
func entryLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}
