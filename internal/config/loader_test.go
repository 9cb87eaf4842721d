package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/config"
)

func mapLookup(env map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnv_AzureVariables(t *testing.T) {
	cfg, err := config.FromEnv(mapLookup(map[string]string{
		config.EnvOpenAIEndpoint:   "https://res.openai.azure.com",
		config.EnvOpenAIKey:        "oai-key",
		config.EnvOpenAIDeployment: "gpt-35-turbo",
		config.EnvSpeechKey:        "speech-key",
		config.EnvSpeechRegion:     "eastus",
		config.EnvSpeechVoice:      "en-US-AriaNeural",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	llm := cfg.Providers.LLM
	if llm.Name != "azure-openai" || llm.BaseURL != "https://res.openai.azure.com" || llm.APIKey != "oai-key" || llm.Model != "gpt-35-turbo" {
		t.Errorf("llm entry = %+v", llm)
	}
	tts := cfg.Providers.TTS
	if tts.Name != "azure" || tts.APIKey != "speech-key" || tts.OptionString("region") != "eastus" {
		t.Errorf("tts entry = %+v", tts)
	}
	if cfg.Voice.Name != "en-US-AriaNeural" {
		t.Errorf("voice.name = %q", cfg.Voice.Name)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q, want default", cfg.Server.ListenAddr)
	}
}

func TestFromEnv_MissingVariables(t *testing.T) {
	_, err := config.FromEnv(mapLookup(map[string]string{
		config.EnvOpenAIKey: "oai-key",
	}))
	if err == nil {
		t.Fatal("expected validation error without speech settings")
	}
	if !strings.Contains(err.Error(), "providers.tts.name") {
		t.Errorf("error should mention providers.tts.name, got %v", err)
	}
	if strings.Contains(err.Error(), "providers.llm.name") {
		t.Errorf("llm should be configured from env, got %v", err)
	}
}

func TestApplyEnv_SpeechSDKProviderKeepsName(t *testing.T) {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{TTS: config.ProviderEntry{Name: "azure-sdk"}},
	}
	config.ApplyEnv(cfg, mapLookup(map[string]string{
		config.EnvSpeechKey:    "speech-key",
		config.EnvSpeechRegion: "westeurope",
	}))

	tts := cfg.Providers.TTS
	if tts.Name != "azure-sdk" || tts.APIKey != "speech-key" || tts.OptionString("region") != "westeurope" {
		t.Errorf("tts entry = %+v", tts)
	}
}

func TestApplyEnv_LeavesOtherProvidersAlone(t *testing.T) {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", APIKey: "sk"},
			TTS: config.ProviderEntry{Name: "elevenlabs", APIKey: "el"},
		},
	}
	config.ApplyEnv(cfg, mapLookup(map[string]string{
		config.EnvOpenAIKey:   "oai-key",
		config.EnvSpeechKey:   "speech-key",
		config.EnvSpeechVoice: "voice-from-env",
	}))

	if cfg.Providers.LLM.APIKey != "sk" {
		t.Errorf("openai api key overwritten: %q", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.TTS.APIKey != "el" {
		t.Errorf("elevenlabs api key overwritten: %q", cfg.Providers.TTS.APIKey)
	}
	if cfg.Voice.Name != "voice-from-env" {
		t.Errorf("voice.name = %q, want voice-from-env", cfg.Voice.Name)
	}
}

func TestApplyEnv_EmptyValuesIgnored(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyEnv(cfg, mapLookup(map[string]string{
		config.EnvOpenAIKey: "",
		config.EnvLogLevel:  "",
	}))
	if cfg.Providers.LLM.Name != "" {
		t.Errorf("empty variable selected provider %q", cfg.Providers.LLM.Name)
	}
	if cfg.Server.LogLevel != "" {
		t.Errorf("empty variable set log level %q", cfg.Server.LogLevel)
	}
}

func TestLoad_ExpandsAndOverrides(t *testing.T) {
	t.Setenv("RELAY_TEST_LLM_KEY", "expanded-key")
	t.Setenv(config.EnvSpeechVoice, "en-GB-SoniaNeural")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
providers:
  llm: {name: openai, api_key: "${RELAY_TEST_LLM_KEY}", model: gpt-4o-mini}
  tts: {name: azure, api_key: k}
voice: {name: en-US-JennyNeural}
session:
  system_instruction: "Prices are in $USD; unset ${RELAY_TEST_UNSET_VAR} vanishes."
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "expanded-key" {
		t.Errorf("api_key = %q, want expanded-key", cfg.Providers.LLM.APIKey)
	}
	if cfg.Voice.Name != "en-GB-SoniaNeural" {
		t.Errorf("voice.name = %q, want env override", cfg.Voice.Name)
	}
	want := "Prices are in $USD; unset  vanishes."
	if cfg.Session.SystemInstruction != want {
		t.Errorf("system_instruction = %q, want %q", cfg.Session.SystemInstruction, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
