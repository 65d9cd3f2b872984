/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dca-engine-go/internal/api"
	"dca-engine-go/internal/common"
	"dca-engine-go/internal/config"
	"dca-engine-go/internal/trigger"

	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	addr := flag.String("addr", "", "Listen address (overrides HTTP_ADDR)")
	schedule := flag.String("trigger", "", "Optional cron expression for in-process passes (overrides TRIGGER_SCHEDULE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *schedule != "" {
		cfg.Trigger.Schedule = *schedule
	}

	if err := config.RequireCronSecret(cfg); err != nil {
		zap.L().Fatal("Refusing to start with an unauthenticated trigger endpoint", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting DCA engine server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	schedules := api.NewScheduleService(services.Repository, services.Journal, cfg.Engine.TotalPeriods)
	wallets := api.NewWalletService(services.Repository, services.Locker, services.Chain, services.Custody,
		services.Assets.Stable.Token(), services.Assets.Volatile.Token())
	handler := api.NewHandler(schedules, services.Engine, wallets, api.HandlerConfig{
		CronSecret:   cfg.Server.CronSecret,
		PeriodLength: cfg.Engine.PeriodLength,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(handler, cfg.Server.RequestTimeout),
	}

	var passTrigger *trigger.PassTrigger
	if cfg.Trigger.Schedule != "" {
		passTrigger, err = trigger.NewPassTrigger(trigger.PassTriggerConfig{
			Runner:   services.Engine,
			Schedule: cfg.Trigger.Schedule,
			Output:   os.Stdout,
		})
		if err != nil {
			zap.L().Fatal("Failed to create pass trigger", zap.Error(err))
		}
		if err := passTrigger.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start pass trigger", zap.Error(err))
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping server...")
	case err, ok := <-serverErr:
		if ok {
			zap.L().Error("HTTP server failed", zap.Error(err))
		}
	}

	if passTrigger != nil {
		passTrigger.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
		return
	}
	cancel()
	zap.L().Info("Server stopped gracefully")
}
