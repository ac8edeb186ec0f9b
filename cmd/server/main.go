// Copyright 2026 The Soundry Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundryhq/soundry/internal/audit"
	"github.com/soundryhq/soundry/internal/config"
	"github.com/soundryhq/soundry/internal/observability/logger"
	"github.com/soundryhq/soundry/internal/observability/metrics"
	"github.com/soundryhq/soundry/internal/observability/tracing"
	"github.com/soundryhq/soundry/internal/organization"
	"github.com/soundryhq/soundry/internal/store/master"
	"github.com/soundryhq/soundry/internal/tenantdb"
	transportHTTP "github.com/soundryhq/soundry/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting soundry studio backend")

	// Tenant connection registry
	connector := tenantdb.NewPGXConnector(tenantdb.ConnectorConfig{
		ConnString:     cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		MinConns:       cfg.Database.MinConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	registry := tenantdb.NewRegistry(connector)
	defer registry.CloseAll()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg, registry); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	if err := meter.RegisterConnectionGauge(registry.ConnectionCount); err != nil {
		slog.Error("failed to register connection gauge", logger.Error(err))
	}

	// Verify master directory is reachable before serving
	if _, err := registry.GetMasterConnection(ctx); err != nil {
		slog.Error("failed to connect to master database", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("connected to master database")

	// Services
	auditLogger := audit.NewSlogLogger()
	migrator := tenantdb.NewTenantMigrator(cfg.Database.MigrationTimeout)
	provisioner := tenantdb.NewProvisioner(registry, migrator, auditLogger)
	orgRepo := master.NewOrganizationRepository(registry)
	orgService := organization.NewService(orgRepo, provisioner, auditLogger)

	// HTTP plumbing
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	handler := transportHTTP.NewHandler(orgService, provisioner, registry, auditLogger, cfg.Admin.TokenSecret)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info(fmt.Sprintf("listening on %s", addr), logger.Component("server"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	registry.CloseAll()
	slog.Info("server stopped")
}

// runMigrate applies the master directory schema. Tenant databases are
// migrated by the provisioner (new tenants) and the provision CLI
// (existing tenants).
func runMigrate(cfg *config.Config, registry *tenantdb.Registry) error {
	ctx := context.Background()

	h, err := registry.GetMasterConnection(ctx)
	if err != nil {
		return err
	}

	migrator := tenantdb.NewMasterMigrator(cfg.Database.MigrationTimeout)
	if err := migrator.Apply(ctx, h); err != nil {
		return err
	}

	slog.Info("master directory schema up to date")
	return nil
}
