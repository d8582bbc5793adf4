package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glinharesb/chevron-bridge/internal/audit"
	"github.com/glinharesb/chevron-bridge/internal/bridge"
	"github.com/glinharesb/chevron-bridge/internal/config"
	"github.com/glinharesb/chevron-bridge/internal/keyring"
	"github.com/glinharesb/chevron-bridge/internal/logging"
	"github.com/glinharesb/chevron-bridge/internal/provider"
	"github.com/glinharesb/chevron-bridge/internal/software"
)

// app is everything a command needs to talk to a provider.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	audit  *audit.Logger
	bridge *bridge.Bridge
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	return config.Load(cmd, file)
}

// newApp loads the configuration and activates a provider.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	provider.SetLogger(logger.Named("provider"))
	bridge.SetLogger(logger.Named("bridge"))

	auditOpts := []audit.Option{audit.WithLogger(logger.Named("audit"))}
	if cfg.Audit.DB != "" {
		sink, err := audit.OpenSQLite(cmd.Context(), cfg.Audit.DB)
		if err != nil {
			return nil, err
		}
		auditOpts = append(auditOpts, audit.WithSink(sink))
		logger.Info("audit entries stored in sqlite", zap.String("db", cfg.Audit.DB))
	}
	var out io.Writer
	if cfg.Audit.Stdout {
		out = os.Stdout
	}
	auditLogger := audit.NewLogger(cfg.Audit.Buffer, out, auditOpts...)

	a := &app{
		cfg:    cfg,
		logger: logger,
		audit:  auditLogger,
		bridge: bridge.New(
			bridge.WithMaxWorkers(cfg.Bridge.MaxWorkers),
			bridge.WithObserver(auditLogger.Observe),
		),
	}
	if err := a.activate(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) activate() error {
	if !a.cfg.Provider.Software {
		_, err := a.bridge.Load(a.cfg.Provider.Path)
		return err
	}

	var store keyring.Store
	if a.cfg.Keyring.Path != "" {
		ps, err := keyring.NewPersistentStore(a.cfg.Keyring.Path, a.logger.Named("keyring"))
		if err != nil {
			return fmt.Errorf("open keyring: %w", err)
		}
		store = ps
		a.logger.Info("using persistent keyring", zap.String("path", a.cfg.Keyring.Path))
	} else {
		store = keyring.NewMemoryStore()
		a.logger.Debug("using in-memory keyring")
	}

	p := software.New(store,
		software.WithLogger(a.logger.Named("software")),
		software.WithSealCost(a.cfg.Keyring.SealCost),
	)
	a.bridge.Install(p.Handle())
	return nil
}

// run drains the bridge's host loop so pending callbacks are delivered.
func (a *app) run(ctx context.Context) error {
	return a.bridge.Run(ctx)
}

func (a *app) Close() {
	if err := a.audit.Close(); err != nil {
		a.logger.Warn("close audit log", zap.Error(err))
	}
	_ = a.logger.Sync()
}
