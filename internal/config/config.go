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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dca-engine-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	lockTTL, err := getEnvDuration("LOCK_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	periodLength, err := getEnvDuration("DCA_PERIOD_LENGTH", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	settleDelay, err := getEnvDuration("DCA_SETTLE_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}

	requestTimeout, err := getEnvDuration("HTTP_REQUEST_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	storeBackend := strings.ToLower(getEnvString("STORE_BACKEND", "sqlite"))

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "dca.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "dca-engine"),
		},
		Store: models.StoreConfig{
			Backend:        storeBackend,
			JournalBackend: strings.ToLower(getEnvString("JOURNAL_BACKEND", storeBackend)),
			SchedulesKey:   getEnvString("SCHEDULES_KEY", "dca:schedules"),
			MaxRetries:     getEnvInt("STORE_MAX_RETRIES", 5),
		},
		Lock: models.LockConfig{
			Backend:  strings.ToLower(getEnvString("LOCK_BACKEND", "local")),
			RedisURL: getEnvString("REDIS_URL", ""),
			Prefix:   getEnvString("LOCK_PREFIX", "dca:lock"),
			TTL:      lockTTL,
		},
		Chain: models.ChainConfig{
			RPCURL:     getEnvString("CHAIN_RPC_URL", "https://mainnet.base.org"),
			AssetsFile: getEnvString("ASSETS_FILE", "assets.yaml"),
		},
		Quote: models.QuoteConfig{
			BaseURL:    getEnvString("ZEROX_API_URL", "https://api.0x.org"),
			APIKey:     getEnvString("ZEROX_API_KEY", ""),
			RatePerSec: getEnvInt("QUOTE_RATE_LIMIT", 5),
		},
		Custody: models.CustodyConfig{
			BaseURL:                 getEnvString("PRIVY_API_URL", "https://api.privy.io"),
			AppID:                   getEnvString("PRIVY_APP_ID", ""),
			AppSecret:               getEnvString("PRIVY_APP_SECRET", ""),
			AuthorizationPrivateKey: getEnvString("PRIVY_AUTHORIZATION_PRIVATE_KEY", ""),
			Sponsor:                 getEnvBool("PRIVY_SPONSOR_GAS", true),
		},
		Engine: models.EngineConfig{
			TotalPeriods:       getEnvInt("DCA_TOTAL_PERIODS", 52),
			PeriodLength:       periodLength,
			SettleDelay:        settleDelay,
			ApprovalMultiplier: int64(getEnvInt("DCA_APPROVAL_MULTIPLIER", 2)),
			Concurrency:        getEnvInt("ENGINE_CONCURRENCY", 4),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			CronSecret:      getEnvString("CRON_SECRET", ""),
			RequestTimeout:  requestTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
		Trigger: models.TriggerConfig{
			Schedule: getEnvString("TRIGGER_SCHEDULE", ""),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.Store.Backend {
	case "sqlite", "formance":
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q (expected sqlite or formance)", cfg.Store.Backend)
	}
	switch cfg.Store.JournalBackend {
	case "sqlite", "formance", "none":
	default:
		return fmt.Errorf("invalid JOURNAL_BACKEND %q (expected sqlite, formance or none)", cfg.Store.JournalBackend)
	}
	switch cfg.Lock.Backend {
	case "local":
	case "redis":
		if cfg.Lock.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LOCK_BACKEND=redis")
		}
	default:
		return fmt.Errorf("invalid LOCK_BACKEND %q (expected local or redis)", cfg.Lock.Backend)
	}
	if cfg.Engine.TotalPeriods <= 0 {
		return fmt.Errorf("DCA_TOTAL_PERIODS must be positive, got %d", cfg.Engine.TotalPeriods)
	}
	if cfg.Engine.PeriodLength <= 0 {
		return fmt.Errorf("DCA_PERIOD_LENGTH must be positive, got %v", cfg.Engine.PeriodLength)
	}
	if cfg.Engine.ApprovalMultiplier < 1 {
		return fmt.Errorf("DCA_APPROVAL_MULTIPLIER must be at least 1, got %d", cfg.Engine.ApprovalMultiplier)
	}
	if cfg.Engine.Concurrency <= 0 {
		cfg.Engine.Concurrency = 1
	}
	if cfg.Store.MaxRetries <= 0 {
		cfg.Store.MaxRetries = 1
	}
	return nil
}

// RequireCustody fails when the custody credentials needed to sign are missing.
func RequireCustody(cfg *models.Config) error {
	var missing []string
	if cfg.Custody.AppID == "" {
		missing = append(missing, "PRIVY_APP_ID")
	}
	if cfg.Custody.AppSecret == "" {
		missing = append(missing, "PRIVY_APP_SECRET")
	}
	if cfg.Custody.AuthorizationPrivateKey == "" {
		missing = append(missing, "PRIVY_AUTHORIZATION_PRIVATE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required custody credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireCronSecret fails when the trigger endpoint would be unauthenticated.
func RequireCronSecret(cfg *models.Config) error {
	if cfg.Server.CronSecret == "" {
		return fmt.Errorf("missing required CRON_SECRET")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
