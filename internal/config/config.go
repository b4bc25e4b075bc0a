// Package config provides the configuration schema, loader, and provider
// registry for the VoxSense server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML strings like "8s"
// or "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity for the VoxSense server.
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

// Config is the root configuration structure for VoxSense.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the VoxSense server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// outbound stage. Each entry selects a named provider registered in the
// [Registry]. Fallback lists are optional; when present each fallback gets
// its own circuit breaker and is tried in order after the primary.
type ProvidersConfig struct {
	STT                ProviderEntry   `yaml:"stt"`
	STTFallbacks       []ProviderEntry `yaml:"stt_fallbacks"`
	Responder          ProviderEntry   `yaml:"responder"`
	ResponderFallbacks []ProviderEntry `yaml:"responder_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper", "cohere").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	// When empty, the loader resolves it from the provider's conventional
	// environment variable (e.g., COHERE_API_KEY).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "command-r-plus", "gpt-4o").
	Model string `yaml:"model"`

	// ModelPath is the filesystem path to a local model file, for providers
	// that run inference in-process (e.g., "whisper-native").
	ModelPath string `yaml:"model_path"`

	// Language is the BCP-47 language code for transcription providers.
	Language string `yaml:"language"`
}

// ClassifierConfig locates and shapes the emotion classification artifact.
type ClassifierConfig struct {
	// ArtifactPath is the filesystem path to the classifier artifact.
	// Exactly one of ArtifactPath and ArtifactURL must be set.
	ArtifactPath string `yaml:"artifact_path"`

	// ArtifactURL is an HTTP(S) URL the artifact is downloaded from on
	// startup and cached under CacheDir.
	ArtifactURL string `yaml:"artifact_url"`

	// CacheDir is the directory downloaded artifacts are cached in.
	// Defaults to the user cache directory when empty.
	CacheDir string `yaml:"cache_dir"`

	// Labels overrides the default emotion label table. When set, it must
	// cover every class index the artifact can emit.
	Labels []string `yaml:"labels"`
}

// PipelineConfig tunes the conversational pipeline.
type PipelineConfig struct {
	// TranscribeTimeout bounds the transcription stage. Default: 8s.
	TranscribeTimeout Duration `yaml:"transcribe_timeout"`

	// GenerateTimeout bounds the reply generation stage. Default: 8s.
	GenerateTimeout Duration `yaml:"generate_timeout"`

	// Vocabulary lists domain terms the transcript corrector aligns STT
	// output against. Empty disables correction.
	Vocabulary []string `yaml:"vocabulary"`
}
