// Command voxsense is the main entry point for the VoxSense emotion-aware
// conversation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxsense/voxsense/internal/app"
	"github.com/voxsense/voxsense/internal/config"
	"github.com/voxsense/voxsense/internal/observe"
	"github.com/voxsense/voxsense/internal/resilience"
	"github.com/voxsense/voxsense/pkg/provider/responder"
	"github.com/voxsense/voxsense/pkg/provider/responder/anyllm"
	"github.com/voxsense/voxsense/pkg/provider/responder/cohere"
	oairesp "github.com/voxsense/voxsense/pkg/provider/responder/openai"
	"github.com/voxsense/voxsense/pkg/provider/stt"
	"github.com/voxsense/voxsense/pkg/provider/stt/whisper"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxsense: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxsense: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxsense starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxsense",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	application, cleanup, err := buildApplication(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer cleanup()

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		return whisper.NewNative(entry.ModelPath, opts...)
	})

	// ── Responders ────────────────────────────────────────────────────────────

	reg.RegisterResponder("cohere", func(entry config.ProviderEntry) (responder.Provider, error) {
		var opts []cohere.Option
		if entry.Model != "" {
			opts = append(opts, cohere.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, cohere.WithBaseURL(entry.BaseURL))
		}
		return cohere.New(entry.APIKey, opts...)
	})

	reg.RegisterResponder("openai", func(entry config.ProviderEntry) (responder.Provider, error) {
		var opts []oairesp.Option
		if entry.Model != "" {
			opts = append(opts, oairesp.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oairesp.WithBaseURL(entry.BaseURL))
		}
		return oairesp.New(entry.APIKey, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, and llamafile all
	// share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterResponder(providerName, func(entry config.ProviderEntry) (responder.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterResponder("ollama", func(entry config.ProviderEntry) (responder.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildApplication instantiates the configured providers (wrapping them in
// fallback groups when fallbacks are configured) and wires the App. The
// returned cleanup func releases provider resources and must run after the
// App has stopped.
func buildApplication(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.App, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}

	trackCloser := func(p any) {
		if c, ok := p.(interface{ Close() error }); ok {
			closers = append(closers, c.Close)
		}
	}

	// STT, with optional fallbacks.
	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	trackCloser(sttP)
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if len(cfg.Providers.STTFallbacks) > 0 {
		group := resilience.NewSTTFallback(sttP, cfg.Providers.STT.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.STTFallbacks {
			fb, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, cleanup, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
			}
			trackCloser(fb)
			group.AddFallback(entry.Name, fb)
			slog.Info("provider created", "kind", "stt", "name", entry.Name, "role", "fallback")
		}
		sttP = group
	}

	// Responder, with optional fallbacks.
	respP, err := reg.CreateResponder(cfg.Providers.Responder)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create responder provider %q: %w", cfg.Providers.Responder.Name, err)
	}
	slog.Info("provider created", "kind", "responder", "name", cfg.Providers.Responder.Name)

	if len(cfg.Providers.ResponderFallbacks) > 0 {
		group := resilience.NewResponderFallback(respP, cfg.Providers.Responder.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.ResponderFallbacks {
			fb, err := reg.CreateResponder(entry)
			if err != nil {
				return nil, cleanup, fmt.Errorf("create responder fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, fb)
			slog.Info("provider created", "kind", "responder", "name", entry.Name, "role", "fallback")
		}
		respP = group
	}

	application, err := app.New(ctx, cfg, &app.Providers{
		STT:       sttP,
		Responder: respP,
	})
	if err != nil {
		return nil, cleanup, err
	}
	return application, cleanup, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        VoxSense — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Responder", cfg.Providers.Responder.Name, cfg.Providers.Responder.Model)
	artifact := cfg.Classifier.ArtifactPath
	if artifact == "" {
		artifact = cfg.Classifier.ArtifactURL
	}
	printProvider("Classifier", artifact, "")
	fmt.Printf("║  STT fallbacks   : %-19d ║\n", len(cfg.Providers.STTFallbacks))
	fmt.Printf("║  Resp fallbacks  : %-19d ║\n", len(cfg.Providers.ResponderFallbacks))
	fmt.Printf("║  Vocabulary      : %-19d ║\n", len(cfg.Pipeline.Vocabulary))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
