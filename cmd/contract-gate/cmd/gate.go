package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/audit"
	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/catalog"
	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/codec"
	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/identity"
	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/notify"
	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/sqlite"
	"github.com/Sentinel-Gate/Contractgate/internal/config"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
	"github.com/Sentinel-Gate/Contractgate/internal/service"
)

// artifactStore is an artifact store that also holds the payloads.
type artifactStore interface {
	contract.ArtifactStore
	outbound.ArtifactDataSource
}

// gate holds the wired components.
type gate struct {
	db         *sqlite.DB
	agreements contract.AgreementStore
	artifacts  artifactStore
	contracts  contract.ContractStore
	resources  contract.ResourceStore

	manager   *service.ContractManager
	verifier  *service.AccessVerifier
	sweeps    *service.EnforcementService
	scheduler *service.EnforcementScheduler

	closers []io.Closer
}

// buildGate wires stores, sinks and services from cfg in dependency order:
// stores, catalog seed, sinks, decision point, negotiation, verifier,
// sweep. recorder may be nil.
func buildGate(ctx context.Context, cfg *config.GateConfig, recorder service.Recorder, logger *slog.Logger) (*gate, error) {
	g := &gate{}
	if err := g.openStores(cfg, logger); err != nil {
		return nil, err
	}

	if cfg.Catalog.SeedFile != "" {
		seed, err := catalog.Load(cfg.Catalog.SeedFile)
		if err != nil {
			_ = g.Close()
			return nil, err
		}
		stores := catalog.Stores{Contracts: g.contracts, Artifacts: g.artifacts, Resources: g.resources, Data: g.artifacts}
		if err := catalog.Apply(ctx, seed, stores, logger); err != nil {
			_ = g.Close()
			return nil, fmt.Errorf("apply catalog seed: %w", err)
		}
	}

	sink, err := audit.Open(cfg.Audit.Output, audit.FileConfig{
		RetentionDays: cfg.Audit.RetentionDays,
		MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
	}, logger)
	if err != nil {
		_ = g.Close()
		return nil, fmt.Errorf("open audit sink: %w", err)
	}
	g.closers = append(g.closers, sink)

	id, err := identity.NewStatic(cfg.Connector.ID)
	if err != nil {
		_ = g.Close()
		return nil, err
	}

	guards, err := buildGuards(cfg, logger)
	if err != nil {
		_ = g.Close()
		return nil, err
	}

	executor := service.NewExecutionService(sink, notify.NewHTTPSink(cfg.NotificationTimeout(), logger), g.artifacts, logger)
	decisions := service.NewDecisionService(executor, g.artifacts, logger,
		service.WithAllowUnsupported(cfg.UsageControl.AllowUnsupportedPatterns),
		service.WithRecorder(recorder),
	)
	g.manager = service.NewContractManager(id, g.agreements, g.artifacts, g.contracts, codec.JSON{}, logger,
		service.WithManagerRecorder(recorder),
	)

	opts := []service.AccessVerifierOption{service.WithEnforcedPatterns(cfg.Patterns())}
	if guards != nil {
		opts = append(opts, service.WithGuards(guards))
	}
	g.verifier = service.NewAccessVerifier(g.manager, decisions, g.artifacts, logger, opts...)

	g.sweeps = service.NewEnforcementService(g.agreements, g.artifacts, g.contracts, g.resources, executor, logger,
		service.WithSweepRecorder(recorder),
	)
	g.scheduler = service.NewEnforcementScheduler(g.sweeps, cfg.Sweep.Schedule, cfg.Sweep.ExpiryEnabled, logger)
	return g, nil
}

func (g *gate) openStores(cfg *config.GateConfig, logger *slog.Logger) error {
	switch cfg.Storage.Driver {
	case "sqlite":
		db, err := sqlite.Open(sqlite.Config{Path: cfg.Storage.SQLitePath, BusyTimeout: cfg.BusyTimeout()})
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		g.db = db
		g.agreements = db.Agreements()
		g.artifacts = db.Artifacts()
		g.contracts = db.Contracts()
		g.resources = db.Resources()
		g.closers = append(g.closers, db)
		logger.Info("using sqlite store", "path", cfg.Storage.SQLitePath)
	default:
		g.agreements = memory.NewAgreementStore()
		g.artifacts = memory.NewArtifactStore()
		g.contracts = memory.NewContractStore()
		g.resources = memory.NewResourceStore()
		logger.Info("using in-memory store")
	}
	return nil
}

func buildGuards(cfg *config.GateConfig, logger *slog.Logger) (*service.GuardService, error) {
	if len(cfg.UsageControl.Guards) == 0 {
		return nil, nil
	}
	defs := make([]service.GuardDefinition, 0, len(cfg.UsageControl.Guards))
	for _, gc := range cfg.UsageControl.Guards {
		defs = append(defs, service.GuardDefinition{
			Name:      gc.Name,
			Condition: gc.Condition,
			Action:    service.GuardAction(strings.ToLower(gc.Action)),
		})
	}
	guards, err := service.NewGuardService(defs, logger)
	if err != nil {
		return nil, fmt.Errorf("compile guards: %w", err)
	}
	return guards, nil
}

// Close releases the store and sinks in reverse order.
func (g *gate) Close() error {
	var errs []error
	for i := len(g.closers) - 1; i >= 0; i-- {
		errs = append(errs, g.closers[i].Close())
	}
	g.closers = nil
	return errors.Join(errs...)
}
