package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.TotalPeriods != 52 {
		t.Errorf("Expected 52 total periods, got %d", cfg.Engine.TotalPeriods)
	}
	if cfg.Engine.PeriodLength != 7*24*time.Hour {
		t.Errorf("Expected one week period length, got %v", cfg.Engine.PeriodLength)
	}
	if cfg.Engine.ApprovalMultiplier != 2 {
		t.Errorf("Expected approval multiplier 2, got %d", cfg.Engine.ApprovalMultiplier)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.JournalBackend != "sqlite" {
		t.Errorf("Expected sqlite store and journal, got %s/%s", cfg.Store.Backend, cfg.Store.JournalBackend)
	}
	if cfg.Store.SchedulesKey != "dca:schedules" {
		t.Errorf("Expected schedules key dca:schedules, got %s", cfg.Store.SchedulesKey)
	}
	if cfg.Lock.Backend != "local" {
		t.Errorf("Expected local lock backend, got %s", cfg.Lock.Backend)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DCA_TOTAL_PERIODS", "4")
	t.Setenv("DCA_PERIOD_LENGTH", "1m")
	t.Setenv("STORE_BACKEND", "FORMANCE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.TotalPeriods != 4 {
		t.Errorf("Expected 4 total periods, got %d", cfg.Engine.TotalPeriods)
	}
	if cfg.Engine.PeriodLength != time.Minute {
		t.Errorf("Expected 1m period, got %v", cfg.Engine.PeriodLength)
	}
	if cfg.Store.Backend != "formance" || cfg.Store.JournalBackend != "formance" {
		t.Errorf("Expected journal to follow store backend, got %s/%s", cfg.Store.Backend, cfg.Store.JournalBackend)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad duration", "DCA_PERIOD_LENGTH", "weekly", "invalid duration"},
		{"bad store", "STORE_BACKEND", "postgres", "STORE_BACKEND"},
		{"bad lock", "LOCK_BACKEND", "etcd", "LOCK_BACKEND"},
		{"redis without url", "LOCK_BACKEND", "redis", "REDIS_URL"},
		{"zero periods", "DCA_TOTAL_PERIODS", "0", "DCA_TOTAL_PERIODS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Expected error for %s=%s", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRequireCustody(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Custody.AppID = "app"
	err = RequireCustody(cfg)
	if err == nil {
		t.Fatal("Expected missing credentials error")
	}
	if strings.Contains(err.Error(), "PRIVY_APP_ID") {
		t.Errorf("PRIVY_APP_ID is set and should not be reported: %v", err)
	}
	if !strings.Contains(err.Error(), "PRIVY_AUTHORIZATION_PRIVATE_KEY") {
		t.Errorf("Expected authorization key to be reported: %v", err)
	}
}
