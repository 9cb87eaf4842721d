package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"azure-openai", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"azure", "azure-sdk", "elevenlabs", "openai", "azure-openai"},
}

// LookupFunc resolves an environment variable. [os.LookupEnv] satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML configuration file at path and returns a validated [Config].
// ${VAR} references in the file are expanded from the process environment and
// the variables read by [ApplyEnv] override the file's values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := decode(expandEnv(data, os.LookupEnv))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// The environment is not consulted. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a validated [Config] from environment variables alone. It is
// used when no configuration file exists.
func FromEnv(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	ApplyEnv(cfg, lookup)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with their values. Unset variables
// expand to the empty string. Bare $VAR is left alone so prompts containing
// dollar signs survive.
func expandEnv(data []byte, lookup LookupFunc) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		v, _ := lookup(string(name))
		return []byte(v)
	})
}

// Environment variables recognised by [ApplyEnv].
const (
	EnvOpenAIEndpoint   = "AZURE_OPEN_AI_ENDPOINT"
	EnvOpenAIKey        = "AZURE_OPEN_AI_API_KEY"
	EnvOpenAIDeployment = "AZURE_OPEN_AI_DEPLOYMENT_MODEL"
	EnvSpeechKey        = "AZURE_SPEECH_KEY"
	EnvSpeechRegion     = "AZURE_SPEECH_REGION"
	EnvSpeechVoice      = "AZURE_SPEECH_VOICE"
	EnvListenAddr       = "RELAY_LISTEN_ADDR"
	EnvLogLevel         = "RELAY_LOG_LEVEL"
)

// ApplyEnv overrides cfg with the Azure environment variables that are set.
// The Azure OpenAI variables apply only when the llm provider is unset or
// "azure-openai"; the speech key and region only when the tts provider is
// unset, "azure" or "azure-sdk". An unset provider is switched to the Azure
// one as soon as one of its variables is present.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if llm := &cfg.Providers.LLM; llm.Name == "" || llm.Name == "azure-openai" {
		if v, ok := get(EnvOpenAIEndpoint); ok {
			llm.Name = "azure-openai"
			llm.BaseURL = v
		}
		if v, ok := get(EnvOpenAIKey); ok {
			llm.Name = "azure-openai"
			llm.APIKey = v
		}
		if v, ok := get(EnvOpenAIDeployment); ok {
			llm.Name = "azure-openai"
			llm.Model = v
		}
	}

	if tts := &cfg.Providers.TTS; tts.Name == "" || tts.Name == "azure" || tts.Name == "azure-sdk" {
		var found bool
		if v, ok := get(EnvSpeechKey); ok {
			tts.APIKey = v
			found = true
		}
		if v, ok := get(EnvSpeechRegion); ok {
			if tts.Options == nil {
				tts.Options = make(map[string]any)
			}
			tts.Options["region"] = v
			found = true
		}
		if found && tts.Name == "" {
			tts.Name = "azure"
		}
	}

	if v, ok := get(EnvSpeechVoice); ok {
		cfg.Voice.Name = v
	}
	if v, ok := get(EnvListenAddr); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Server.LogLevel = LogLevel(v)
	}
}

// ApplyDefaults fills every unset field that has a documented default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Session.FlushThreshold == 0 {
		cfg.Session.FlushThreshold = DefaultFlushThreshold
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.TraceExporter == "" {
		cfg.Telemetry.TraceExporter = TraceNone
	}
	if cfg.Telemetry.MetricsPath == "" {
		cfg.Telemetry.MetricsPath = DefaultMetricsPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; must be one of: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("server.write_timeout must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", fb.Name)
	}

	if cfg.Voice.Name == "" {
		errs = append(errs, errors.New("voice.name is required"))
	}

	if t := cfg.Session.TemperatureOrDefault(); t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("session.temperature %.2f is out of range; must be between 0 and 2", t))
	}
	if cfg.Session.MaxTokens < 0 {
		errs = append(errs, errors.New("session.max_tokens must not be negative"))
	}
	if cfg.Session.FlushThreshold < 0 {
		errs = append(errs, errors.New("session.flush_threshold must be positive"))
	}

	if e := cfg.Telemetry.TraceExporter; e != "" && !e.IsValid() {
		errs = append(errs, fmt.Errorf("telemetry.trace_exporter %q is invalid; must be one of: none, stdout, otlp", e))
	}
	if p := cfg.Telemetry.MetricsPath; p != "" && p[0] != '/' {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
	}
	if r := cfg.Telemetry.SampleRatioOrDefault(); r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %.2f is out of range; must be between 0 and 1", r))
	}

	if r := cfg.Resilience; r.MaxFailures < 0 || r.ResetTimeout < 0 || r.HalfOpenMax < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
