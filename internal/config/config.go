// Package config provides the configuration schema, loader, and provider registry
// for the relay server.
package config

import "time"

// LogLevel controls log verbosity for the relay server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// TraceExporter selects where finished spans are sent.
type TraceExporter string

const (
	TraceNone   TraceExporter = "none"
	TraceStdout TraceExporter = "stdout"
	TraceOTLP   TraceExporter = "otlp"
)

// IsValid reports whether e is a recognised trace exporter.
func (e TraceExporter) IsValid() bool {
	switch e {
	case TraceNone, TraceStdout, TraceOTLP:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults] when a field is left empty.
const (
	DefaultListenAddr      = "127.0.0.1:8000"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultTemperature     = 0.7
	DefaultFlushThreshold  = 300
	DefaultServiceName     = "relay"
	DefaultMetricsPath     = "/metrics"
)

// Config is the root configuration structure for the relay server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Voice      VoiceConfig      `yaml:"voice"`
	Session    SessionConfig    `yaml:"session"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server binds to (e.g., "127.0.0.1:8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets the minimum log severity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// ShutdownTimeout bounds graceful shutdown, including draining open
	// WebSocket sessions.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// WriteTimeout bounds a single frame write to a client. Zero disables it.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// AllowedOrigins lists host patterns accepted for cross-origin WebSocket
	// handshakes. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the completion and speech providers. Fallback
// entries are tried in order when the primary fails.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	TTS          ProviderEntry   `yaml:"tts"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the provider's factory in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "azure-openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. For Azure
	// providers it is the resource endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider. Azure OpenAI
	// interprets it as the deployment name.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] as a string, or "" when absent or not a string.
func (e ProviderEntry) OptionString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptionBool returns Options[key] as a bool. Missing or non-bool values are false.
func (e ProviderEntry) OptionBool(key string) bool {
	b, _ := e.Options[key].(bool)
	return b
}

// OptionInt returns Options[key] as an int, accepting any YAML number.
// def is returned when the key is missing or not numeric.
func (e ProviderEntry) OptionInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// OptionFloat returns Options[key] as a float64, accepting any YAML number.
// def is returned when the key is missing or not numeric.
func (e ProviderEntry) OptionFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// VoiceConfig identifies the synthesis voice.
type VoiceConfig struct {
	// Name is the provider-specific voice identifier
	// (e.g., "en-US-JennyNeural" for Azure Speech).
	Name string `yaml:"name"`

	// Language is a BCP-47 tag. When empty, providers derive it from Name
	// where they can.
	Language string `yaml:"language"`
}

// SessionConfig holds per-prompt completion settings shared by every session.
type SessionConfig struct {
	// SystemInstruction is prepended to every prompt as a system message.
	SystemInstruction string `yaml:"system_instruction"`

	// Temperature is the sampling temperature. nil means [DefaultTemperature];
	// an explicit 0 is kept.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps the completion length. Zero leaves it to the provider.
	MaxTokens int `yaml:"max_tokens"`

	// FlushThreshold is the buffer length in characters that forces a
	// synthesis segment without sentence punctuation.
	FlushThreshold int `yaml:"flush_threshold"`
}

// TemperatureOrDefault returns the configured temperature or [DefaultTemperature].
func (s SessionConfig) TemperatureOrDefault() float64 {
	if s.Temperature == nil {
		return DefaultTemperature
	}
	return *s.Temperature
}

// TelemetryConfig controls tracing and metrics exposure.
type TelemetryConfig struct {
	ServiceName   string        `yaml:"service_name"`
	TraceExporter TraceExporter `yaml:"trace_exporter"`

	// OTLPEndpoint is the collector address for the otlp exporter. Empty
	// uses the exporter's environment-driven default.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// MetricsPath is the HTTP path serving Prometheus metrics.
	MetricsPath string `yaml:"metrics_path"`

	// SampleRatio is the fraction of new traces recorded, in [0, 1]. Nil
	// records every trace.
	SampleRatio *float64 `yaml:"sample_ratio"`
}

// SampleRatioOrDefault returns the configured trace sample ratio or 1.
func (t TelemetryConfig) SampleRatioOrDefault() float64 {
	if t.SampleRatio == nil {
		return 1
	}
	return *t.SampleRatio
}

// ResilienceConfig tunes the circuit breakers guarding each provider.
// Zero values fall back to the breaker's own defaults.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}
