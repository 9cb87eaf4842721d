package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/config"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/llm"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/llm/anyllm"
	oaillm "github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/llm/openai"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
	azuretts "github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts/azure"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts/azuresdk"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts/elevenlabs"
	oaitts "github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		opts = append(opts, llmCommonOptions(entry)...)
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// azure-openai routes to a deployment; Model is the deployment name and
	// BaseURL the resource endpoint.
	reg.RegisterLLM("azure-openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		if entry.BaseURL == "" {
			return nil, errors.New("azure-openai: base_url (resource endpoint) is required")
		}
		opts := []oaillm.Option{oaillm.WithAzure(entry.BaseURL, entry.OptionString("api_version"))}
		cred, err := azureCredential(entry)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			opts = append(opts, oaillm.WithTokenCredential(cred))
		}
		opts = append(opts, llmCommonOptions(entry)...)
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp and
	// llamafile share the same pattern: optional APIKey + optional BaseURL.
	for _, backend := range anyllm.Backends() {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("azure", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []azuretts.Option
		if entry.BaseURL != "" {
			opts = append(opts, azuretts.WithEndpoint(entry.BaseURL))
		}
		if format := entry.OptionString("output_format"); format != "" {
			opts = append(opts, azuretts.WithOutputFormat(format))
		}
		if secs := entry.OptionInt("timeout_seconds", 0); secs > 0 {
			opts = append(opts, azuretts.WithTimeout(time.Duration(secs)*time.Second))
		}
		return azuretts.New(entry.APIKey, entry.OptionString("region"), opts...)
	})

	reg.RegisterTTS("azure-sdk", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []azuresdk.Option
		if entry.BaseURL != "" {
			opts = append(opts, azuresdk.WithEndpoint(entry.BaseURL))
		}
		if format := entry.OptionString("output_format"); format != "" {
			opts = append(opts, azuresdk.WithOutputFormat(format))
		}
		return azuresdk.New(entry.APIKey, entry.OptionString("region"), opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if format := entry.OptionString("output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		def := elevenlabs.DefaultVoiceSettings
		opts = append(opts, elevenlabs.WithVoiceSettings(
			entry.OptionFloat("stability", def.Stability),
			entry.OptionFloat("similarity_boost", def.SimilarityBoost),
		))
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		return oaitts.New(entry.APIKey, ttsOpenAIOptions(entry)...)
	})

	reg.RegisterTTS("azure-openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		if entry.BaseURL == "" {
			return nil, errors.New("azure-openai tts: base_url (resource endpoint) is required")
		}
		opts := []oaitts.Option{oaitts.WithAzure(entry.BaseURL, entry.OptionString("api_version"))}
		cred, err := azureCredential(entry)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			opts = append(opts, oaitts.WithTokenCredential(cred))
		}
		// WithBaseURL is ignored in Azure mode, so only model and format apply.
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if format := entry.OptionString("response_format"); format != "" {
			opts = append(opts, oaitts.WithResponseFormat(format))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	slog.Debug("registered providers", "llm", reg.LLMNames(), "tts", reg.TTSNames())
}

// llmCommonOptions maps the options shared by the openai and azure-openai
// completion providers.
func llmCommonOptions(entry config.ProviderEntry) []oaillm.Option {
	var opts []oaillm.Option
	if secs := entry.OptionInt("timeout_seconds", 0); secs > 0 {
		opts = append(opts, oaillm.WithTimeout(time.Duration(secs)*time.Second))
	}
	if n := entry.OptionInt("max_retries", -1); n >= 0 {
		opts = append(opts, oaillm.WithMaxRetries(n))
	}
	return opts
}

func ttsOpenAIOptions(entry config.ProviderEntry) []oaitts.Option {
	var opts []oaitts.Option
	if entry.Model != "" {
		opts = append(opts, oaitts.WithModel(entry.Model))
	}
	if format := entry.OptionString("response_format"); format != "" {
		opts = append(opts, oaitts.WithResponseFormat(format))
	}
	if entry.BaseURL != "" {
		opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
	}
	if n := entry.OptionInt("max_retries", -1); n >= 0 {
		opts = append(opts, oaitts.WithMaxRetries(n))
	}
	return opts
}

// azureCredential returns a DefaultAzureCredential when options.use_azure_ad
// is set, and nil otherwise so the API key is used.
func azureCredential(entry config.ProviderEntry) (azcore.TokenCredential, error) {
	if !entry.OptionBool("use_azure_ad") {
		return nil, nil
	}
	opts := &azidentity.DefaultAzureCredentialOptions{}
	if tenant := entry.OptionString("tenant_id"); tenant != "" {
		opts.TenantID = tenant
	}
	cred, err := azidentity.NewDefaultAzureCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("%s: azure ad credential: %w", entry.Name, err)
	}
	return cred, nil
}
