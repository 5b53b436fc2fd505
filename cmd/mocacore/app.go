package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mocacore/internal/blob"
	"mocacore/internal/config"
	"mocacore/internal/core"
	"mocacore/internal/logging"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   core.PersistentStore
	metrics *core.PrometheusMetricsRecorder
	svc     *core.Service
}

func openApp(ctx context.Context, opts *rootOptions, extra ...core.ServiceOption) (*app, error) {
	cfg, err := config.Load(config.Options{File: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	store, err := core.OpenPersistentStore(ctx, storageConfig(cfg.Storage), nil, nil, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	metrics := core.NewPrometheusMetricsRecorder()
	svcOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithStorageTimeout(cfg.Storage.Timeout),
		core.WithExpectedCity(cfg.Scoring.ExpectedCity),
	}
	if cfg.Blob.Driver != "none" {
		artifacts, err := blob.Open(ctx, blobConfig(cfg.Blob))
		if err != nil {
			_ = store.Close()
			_ = logger.Sync()
			return nil, fmt.Errorf("open artifact store: %w", err)
		}
		svcOpts = append(svcOpts, core.WithArtifactStore(artifacts))
		logger.Info("artifact store ready", zap.String("driver", string(artifacts.Driver())))
	}
	svcOpts = append(svcOpts, extra...)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics,
		svc:     core.NewService(store, svcOpts...),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func storageConfig(c config.StorageConfig) core.StorageConfig {
	return core.StorageConfig{
		Driver:         core.StorageDriver(c.Driver),
		SQLitePath:     c.SQLitePath,
		PostgresDSN:    c.PostgresDSN,
		BadgerPath:     c.BadgerPath,
		BadgerInMemory: c.BadgerInMemory,
	}
}

func blobConfig(c config.BlobConfig) blob.Config {
	return blob.Config{
		Driver: c.Driver,
		FSRoot: c.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.S3.Bucket,
			Region:          c.S3.Region,
			Endpoint:        c.S3.Endpoint,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			PathStyle:       c.S3.PathStyle,
		},
	}
}
