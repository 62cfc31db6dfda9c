package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/afinia/internal/codec"
	"github.com/danielpatrickdp/afinia/internal/config"
	"github.com/danielpatrickdp/afinia/internal/gate"
	"github.com/danielpatrickdp/afinia/internal/logging"
	"github.com/danielpatrickdp/afinia/internal/orchestrator"
	"github.com/danielpatrickdp/afinia/internal/session"
	"github.com/danielpatrickdp/afinia/internal/signals"
	"github.com/danielpatrickdp/afinia/internal/state"
	"github.com/danielpatrickdp/afinia/internal/update"
)

// app holds the wired service and everything that must be closed with it.
type app struct {
	orch    *orchestrator.Orchestrator
	closers []func() error
}

// buildApp wires store, sessions, model client, policy and provenance into
// an orchestrator. On error everything opened so far is closed.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Store.Backend == state.BackendSQLite {
		if err := ensureParent(cfg.Store.Path); err != nil {
			return nil, err
		}
	}
	store, err := state.Open(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	sessions := session.NewMemory(cfg.Session, logger.Named("session"))
	a.closers = append(a.closers, sessions.Close)

	client, err := codec.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("model client: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	recorder, err := openRecorder(cfg.Provenance.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, recorder.Close)

	policy := update.NewPolicy(cfg.Policy, gate.NewGate(cfg.Gate.GateConfig))
	extractor := signals.NewExtractor(signals.ExtractorConfig{
		Open:  cfg.Extractor.Open,
		Close: cfg.Extractor.Close,
		Mode:  cfg.Policy.Mode,
	})

	a.orch, err = orchestrator.New(orchestrator.Config{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Greeting:    orchestrator.DefaultGreeting,
	}, orchestrator.Deps{
		Store:     store,
		Sessions:  sessions,
		Client:    client,
		Extractor: extractor,
		Policy:    policy,
		Recorder:  recorder,
		Logger:    logger.Named("turn"),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("service wired",
		zap.String("store", cfg.Store.Backend),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.String("mode", string(cfg.Policy.Mode)),
		zap.Bool("evidence_gate", cfg.Gate.RequireEvidence),
		zap.Bool("provenance", cfg.Provenance.Path != ""),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openRecorder returns a no-op recorder when path is empty.
func openRecorder(path string) (logging.Recorder, error) {
	if path == "" {
		return logging.NopRecorder{}, nil
	}
	if err := ensureParent(path); err != nil {
		return nil, err
	}
	rec, err := logging.OpenRecorder(path)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
