package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/config"
)

func TestRegisterBuiltinProviders_CoversKnownNames(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for kind, names := range config.ValidProviderNames {
		registered := reg.LLMNames()
		if kind == "tts" {
			registered = reg.TTSNames()
		}
		for _, name := range names {
			if !slices.Contains(registered, name) {
				t.Errorf("%s provider %q is listed as known but not registered", kind, name)
			}
		}
	}
}

func TestRegisterBuiltinProviders_Factories(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	tests := []struct {
		name    string
		create  func() error
		wantErr bool
	}{
		{"openai", func() error {
			_, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", APIKey: "sk", Model: "gpt-4o-mini"})
			return err
		}, false},
		{"openai without key", func() error {
			_, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"})
			return err
		}, true},
		{"azure-openai", func() error {
			_, err := reg.CreateLLM(config.ProviderEntry{
				Name: "azure-openai", APIKey: "k", BaseURL: "https://res.openai.azure.com", Model: "gpt-35-turbo",
				Options: map[string]any{"api_version": "2023-09-01-preview", "max_retries": 1},
			})
			return err
		}, false},
		{"azure-openai without endpoint", func() error {
			_, err := reg.CreateLLM(config.ProviderEntry{Name: "azure-openai", APIKey: "k", Model: "gpt-35-turbo"})
			return err
		}, true},
		{"ollama", func() error {
			_, err := reg.CreateLLM(config.ProviderEntry{Name: "ollama", BaseURL: "http://127.0.0.1:11434", Model: "llama3"})
			return err
		}, false},
		{"azure speech", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "azure", APIKey: "k", Options: map[string]any{"region": "eastus"}})
			return err
		}, false},
		{"azure speech without region", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "azure", APIKey: "k"})
			return err
		}, true},
		{"azure speech sdk", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "azure-sdk", APIKey: "k", Options: map[string]any{"region": "eastus"}})
			return err
		}, false},
		{"azure speech sdk without key", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "azure-sdk", Options: map[string]any{"region": "eastus"}})
			return err
		}, true},
		{"elevenlabs", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs", APIKey: "el"})
			return err
		}, false},
		{"openai speech", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "openai", APIKey: "sk", Model: "tts-1"})
			return err
		}, false},
		{"azure-openai speech", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "azure-openai", APIKey: "k", BaseURL: "https://res.openai.azure.com", Model: "tts"})
			return err
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.create()
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_FallsBackToEnvironment(t *testing.T) {
	t.Setenv(config.EnvOpenAIEndpoint, "https://res.openai.azure.com")
	t.Setenv(config.EnvOpenAIKey, "k")
	t.Setenv(config.EnvOpenAIDeployment, "gpt-35-turbo")
	t.Setenv(config.EnvSpeechKey, "sk")
	t.Setenv(config.EnvSpeechRegion, "eastus")
	t.Setenv(config.EnvSpeechVoice, "en-US-JennyNeural")

	cfg, source, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if source != "environment" {
		t.Errorf("source = %q, want environment", source)
	}
	if cfg.Providers.LLM.Name != "azure-openai" || cfg.Providers.TTS.Name != "azure" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
}

func TestLoadConfig_MissingFileAndEnvironment(t *testing.T) {
	for _, key := range []string{
		config.EnvOpenAIEndpoint, config.EnvOpenAIKey, config.EnvOpenAIDeployment,
		config.EnvSpeechKey, config.EnvSpeechRegion, config.EnvSpeechVoice,
	} {
		t.Setenv(key, "")
	}

	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error without config file or environment")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error should explain the missing file, got %v", err)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		l := newLogger(tt.level)
		if !l.Enabled(context.Background(), tt.want) {
			t.Errorf("level %q: %v should be enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && l.Enabled(context.Background(), tt.want-4) {
			t.Errorf("level %q: %v should be disabled", tt.level, tt.want-4)
		}
	}
}
