package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Formance FormanceConfig
	Store    StoreConfig
	Lock     LockConfig
	Chain    ChainConfig
	Quote    QuoteConfig
	Custody  CustodyConfig
	Engine   EngineConfig
	Server   ServerConfig
	Trigger  TriggerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// FormanceConfig holds Formance Stack connection settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// StoreConfig selects the schedule store and execution journal backends
type StoreConfig struct {
	Backend        string // "sqlite" or "formance"
	JournalBackend string // "sqlite", "formance" or "none"
	SchedulesKey   string
	MaxRetries     int
}

// LockConfig selects the per-schedule lock implementation
type LockConfig struct {
	Backend  string // "local" or "redis"
	RedisURL string
	Prefix   string
	TTL      time.Duration
}

// ChainConfig holds chain access settings
type ChainConfig struct {
	RPCURL     string
	AssetsFile string
}

// QuoteConfig holds swap quote API settings
type QuoteConfig struct {
	BaseURL    string
	APIKey     string
	RatePerSec int
}

// CustodyConfig holds custody/signing service settings
type CustodyConfig struct {
	BaseURL                 string
	AppID                   string
	AppSecret               string
	AuthorizationPrivateKey string
	Sponsor                 bool
}

// EngineConfig holds execution engine settings
type EngineConfig struct {
	TotalPeriods       int
	PeriodLength       time.Duration
	SettleDelay        time.Duration
	ApprovalMultiplier int64
	Concurrency        int
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string
	CronSecret      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// TriggerConfig holds the in-process periodic trigger settings
type TriggerConfig struct {
	Schedule string // cron expression; empty disables the in-process trigger
}
