package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atsora/pomamo-engine-sub026/internal/cache"
	"github.com/atsora/pomamo-engine-sub026/internal/guess"
	"github.com/atsora/pomamo-engine-sub026/internal/logger"
	"github.com/atsora/pomamo-engine-sub026/internal/metrics"
	"github.com/atsora/pomamo-engine-sub026/internal/orchestrator"
	"github.com/atsora/pomamo-engine-sub026/internal/provenance"
	"github.com/atsora/pomamo-engine-sub026/internal/store"
	"github.com/atsora/pomamo-engine-sub026/internal/store/pgstore"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// cacheEntries bounds the resolved-state cache of long-running commands.
const cacheEntries = 4096

// env is what every command works on. Close releases the backend.
type env struct {
	backend    store.Backend
	orch       *orchestrator.Orchestrator
	provenance *provenance.Log // nil unless the backend is sqlite
	registry   *prometheus.Registry
}

func (e *env) Close() error { return e.backend.Close() }

func openBackend(ctx context.Context, root *CLI) (store.Backend, error) {
	switch root.cfg.Store.Driver {
	case "postgres":
		return pgstore.Open(ctx, root.cfg.Store.DSN, logger.WithComponent("pgstore"))
	default:
		return store.NewStore(root.cfg.Store.Path)
	}
}

// open wires the orchestrator. cached enables the resolved-state cache and
// logging enables the provenance log.
func open(ctx context.Context, root *CLI, cached, logging bool) (*env, error) {
	backend, err := openBackend(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e := &env{backend: backend, registry: prometheus.NewRegistry()}

	opts := orchestrator.Options{
		Days:    timerange.CutoffDays{Location: root.cfg.Location(), Cutoff: root.cfg.DayCutoff()},
		Metrics: metrics.NewPrometheusRecorder(e.registry),
		Logger:  logger.GetLogger(),
	}
	if root.Rules != "" {
		rules, err := guess.LoadRules(root.Rules)
		if err != nil {
			backend.Close()
			return nil, err
		}
		table := guess.NewTable(rules, logger.WithComponent("guess"))
		opts.Guessers, opts.Selector = table, table
	}
	if cached {
		opts.Cache = cache.NewLRU(cacheEntries)
	}
	if s, ok := backend.(*store.Store); ok {
		if e.provenance, err = provenance.NewLog(s.DB(), logger.WithComponent("provenance")); err != nil {
			backend.Close()
			return nil, err
		}
		if logging {
			opts.Observer = e.provenance
		}
	}
	e.orch = orchestrator.New(backend, root.cfg, opts)
	return e, nil
}
