// Package app wires all VoxSense subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithClassifier,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxsense/voxsense/internal/config"
	"github.com/voxsense/voxsense/internal/health"
	"github.com/voxsense/voxsense/internal/httpapi"
	"github.com/voxsense/voxsense/internal/observe"
	"github.com/voxsense/voxsense/internal/pipeline"
	"github.com/voxsense/voxsense/internal/transcript"
	"github.com/voxsense/voxsense/internal/transcript/phonetic"
	"github.com/voxsense/voxsense/pkg/emotion"
	"github.com/voxsense/voxsense/pkg/provider/responder"
	"github.com/voxsense/voxsense/pkg/provider/stt"
)

// shutdownGrace is how long in-flight requests get to finish after the run
// context is cancelled.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per outbound provider slot.
// Populated by main.go via the config registry.
type Providers struct {
	STT       stt.Provider
	Responder responder.Provider
}

// App owns all subsystem lifetimes and serves the VoxSense HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers

	classifier   pipeline.Classifier
	orchestrator *pipeline.Orchestrator
	metrics      *observe.Metrics
	server       *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithClassifier injects a classifier instead of loading the artifact from
// config.
func WithClassifier(c pipeline.Classifier) Option {
	return func(a *App) { a.classifier = c }
}

// WithMetrics injects a metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously. A classifier artifact that
// cannot be loaded is a construction failure: the service must not come up
// without its model.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.classifier == nil {
		if err := a.initClassifier(ctx); err != nil {
			return nil, fmt.Errorf("app: init classifier: %w", err)
		}
	}

	a.initOrchestrator()
	a.initServer()

	return a, nil
}

// initClassifier loads the emotion classification artifact from the location
// given in config.
func (a *App) initClassifier(ctx context.Context) error {
	var src emotion.ArtifactSource
	switch {
	case a.cfg.Classifier.ArtifactPath != "":
		src = emotion.FileSource{Path: a.cfg.Classifier.ArtifactPath}
	case a.cfg.Classifier.ArtifactURL != "":
		cacheDir := a.cfg.Classifier.CacheDir
		if cacheDir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return fmt.Errorf("resolve cache dir: %w", err)
			}
			cacheDir = filepath.Join(base, "voxsense")
		}
		src = &emotion.HTTPSource{
			URL:      a.cfg.Classifier.ArtifactURL,
			CacheDir: cacheDir,
		}
	default:
		return errors.New("no artifact location configured")
	}

	var clsOpts []emotion.Option
	if len(a.cfg.Classifier.Labels) > 0 {
		labels := make([]emotion.Label, len(a.cfg.Classifier.Labels))
		for i, l := range a.cfg.Classifier.Labels {
			labels[i] = emotion.Label(l)
		}
		clsOpts = append(clsOpts, emotion.WithLabels(labels))
	}

	cls, err := emotion.New(ctx, src, clsOpts...)
	if err != nil {
		return err
	}
	a.classifier = cls
	return nil
}

// initOrchestrator builds the conversational pipeline from config.
func (a *App) initOrchestrator() {
	pipeOpts := []pipeline.Option{
		pipeline.WithMetrics(a.metrics),
	}
	if d := a.cfg.Pipeline.TranscribeTimeout.Std(); d > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithTranscribeTimeout(d))
	}
	if d := a.cfg.Pipeline.GenerateTimeout.Std(); d > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithGenerateTimeout(d))
	}
	if vocab := a.cfg.Pipeline.Vocabulary; len(vocab) > 0 {
		corrector := transcript.NewVocabularyCorrector(phonetic.New(), vocab)
		pipeOpts = append(pipeOpts, pipeline.WithCorrector(corrector))
	}

	a.orchestrator = pipeline.New(a.providers.STT, a.classifier, a.providers.Responder, pipeOpts...)
}

// initServer assembles the HTTP handler chain and server.
func (a *App) initServer() {
	healthH := health.New(
		health.Checker{
			Name: "classifier",
			Check: func(context.Context) error {
				if a.classifier == nil {
					return errors.New("classifier not loaded")
				}
				return nil
			},
		},
		health.Checker{
			Name: "providers",
			Check: func(context.Context) error {
				if a.providers.STT == nil {
					return errors.New("no STT provider")
				}
				if a.providers.Responder == nil {
					return errors.New("no responder provider")
				}
				return nil
			},
		},
	)

	apiH := httpapi.New(a.classifier, a.providers.Responder, a.orchestrator, healthH)

	mux := http.NewServeMux()
	apiH.Register(mux)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.server.Shutdown(ctx)
	})
}

// Run serves HTTP until ctx is cancelled or the server fails. It always
// performs a graceful shutdown before returning.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tls := a.cfg.Server.TLS
		if tls != nil {
			slog.Info("listening", "addr", a.server.Addr, "tls", true)
			if err := a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
		slog.Info("listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// AddCloser registers fn to run during Shutdown, after the HTTP server has
// stopped. Used by main.go for provider teardown (e.g. releasing a native
// STT model).
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}
