package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"whisper", "whisper-native"},
	"responder": {"cohere", "openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// credentialEnvVars maps provider names to the environment variable their
// API key is resolved from when the config omits it.
var credentialEnvVars = map[string]string{
	"cohere":    "COHERE_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, resolves credentials from the
// environment, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	ResolveCredentials(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveCredentials fills in empty APIKey fields from the provider's
// conventional environment variable. Keys given explicitly in the config
// always win.
func ResolveCredentials(cfg *Config) {
	resolveEntryCredential(&cfg.Providers.STT)
	for i := range cfg.Providers.STTFallbacks {
		resolveEntryCredential(&cfg.Providers.STTFallbacks[i])
	}
	resolveEntryCredential(&cfg.Providers.Responder)
	for i := range cfg.Providers.ResponderFallbacks {
		resolveEntryCredential(&cfg.Providers.ResponderFallbacks[i])
	}
}

func resolveEntryCredential(e *ProviderEntry) {
	if e.Name == "" || e.APIKey != "" {
		return
	}
	envVar, ok := credentialEnvVars[strings.ToLower(e.Name)]
	if !ok {
		return
	}
	if v := os.Getenv(envVar); v != "" {
		e.APIKey = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.Responder.Name == "" {
		errs = append(errs, errors.New("providers.responder.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	for _, e := range cfg.Providers.STTFallbacks {
		validateProviderName("stt", e.Name)
	}
	validateProviderName("responder", cfg.Providers.Responder.Name)
	for _, e := range cfg.Providers.ResponderFallbacks {
		validateProviderName("responder", e.Name)
	}

	// Credentialed responders must end up with a key from config or env.
	checkCredential := func(field string, e ProviderEntry) {
		envVar, needsKey := credentialEnvVars[strings.ToLower(e.Name)]
		if needsKey && e.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s: provider %q needs an API key; set api_key or the %s environment variable", field, e.Name, envVar))
		}
	}
	checkCredential("providers.responder", cfg.Providers.Responder)
	for i, e := range cfg.Providers.ResponderFallbacks {
		checkCredential(fmt.Sprintf("providers.responder_fallbacks[%d]", i), e)
	}

	// Classifier artifact location
	switch {
	case cfg.Classifier.ArtifactPath == "" && cfg.Classifier.ArtifactURL == "":
		errs = append(errs, errors.New("classifier: one of artifact_path or artifact_url is required"))
	case cfg.Classifier.ArtifactPath != "" && cfg.Classifier.ArtifactURL != "":
		errs = append(errs, errors.New("classifier: artifact_path and artifact_url are mutually exclusive"))
	}

	// Pipeline
	if cfg.Pipeline.TranscribeTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.transcribe_timeout %v must not be negative", cfg.Pipeline.TranscribeTimeout.Std()))
	}
	if cfg.Pipeline.GenerateTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.generate_timeout %v must not be negative", cfg.Pipeline.GenerateTimeout.Std()))
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
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
