package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"dca-engine-go/internal/chain"
	"dca-engine-go/internal/config"
	"dca-engine-go/internal/custody"
	"dca-engine-go/internal/database"
	"dca-engine-go/internal/engine"
	"dca-engine-go/internal/formance"
	"dca-engine-go/internal/lock"
	"dca-engine-go/internal/models"
	"dca-engine-go/internal/prime"
	"dca-engine-go/internal/quote"
	"dca-engine-go/internal/store"
	"dca-engine-go/internal/transport"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services bundles the schedule store, execution journal, lock and engine.
// Chain, Quotes and Custody are nil when built by InitializeStoreOnly.
type Services struct {
	Repository *store.Repository
	Journal    store.ExecutionJournal
	Locker     lock.Locker
	Assets     *AssetsConfig
	Chain      *chain.Client
	Quotes     *quote.Client
	Custody    *custody.Client
	Engine     *engine.Engine

	closers []func()
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires everything needed to execute schedules: storage,
// locking, the balance oracle, the quote client and the custody submitter.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	if err := config.RequireCustody(cfg); err != nil {
		return nil, err
	}

	services, err := InitializeStoreOnly(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := services.initializeProviders(ctx, cfg); err != nil {
		services.Close()
		return nil, err
	}

	services.Engine = newEngine(cfg, services, services.Chain, services.Quotes, services.Custody)
	zap.L().Info("Execution engine ready",
		zap.Int64("chain_id", services.Assets.Chain.Id),
		zap.String("stable", services.Assets.Stable.Symbol),
		zap.String("volatile", services.Assets.Volatile.Symbol),
		zap.Int("concurrency", cfg.Engine.Concurrency))
	return services, nil
}

// InitializeStoreOnly initializes storage and locking without any external
// provider. The engine it returns can list, create, cancel and reconcile
// schedules, but not execute them.
func InitializeStoreOnly(ctx context.Context, cfg *models.Config) (*Services, error) {
	assets, err := LoadAssetConfig(cfg.Chain.AssetsFile)
	if err != nil {
		return nil, err
	}

	services := &Services{Assets: assets}

	locker, err := newLocker(ctx, cfg.Lock)
	if err != nil {
		return nil, err
	}
	services.Locker = locker
	if r, ok := locker.(*lock.Redis); ok {
		services.closers = append(services.closers, func() {
			if err := r.Close(); err != nil {
				zap.L().Warn("Failed to close redis client", zap.Error(err))
			}
		})
	}

	backend, journal, err := newStoreBackends(ctx, cfg, services)
	if err != nil {
		services.Close()
		return nil, err
	}

	services.Repository = store.NewRepository(backend, locker, cfg.Store.MaxRetries)
	services.Journal = journal
	services.Engine = newEngine(cfg, services, nil, nil, nil)

	zap.L().Info("Schedule store ready",
		zap.String("store", cfg.Store.Backend),
		zap.String("journal", cfg.Store.JournalBackend),
		zap.String("lock", cfg.Lock.Backend))
	return services, nil
}

func newLocker(ctx context.Context, cfg models.LockConfig) (lock.Locker, error) {
	switch cfg.Backend {
	case "redis":
		zap.L().Info("Using redis lock", zap.String("prefix", cfg.Prefix), zap.Duration("ttl", cfg.TTL))
		return lock.NewRedisFromURL(ctx, cfg.RedisURL, cfg.Prefix, cfg.TTL)
	default:
		zap.L().Info("Using in-process lock")
		return lock.NewLocal(), nil
	}
}

// backendService is a storage backend serving both the schedule document and
// the execution journal.
type backendService interface {
	store.ScheduleStore
	store.ExecutionJournal
}

// newStoreBackends opens the schedule store and the journal. When both use
// the same backend a single connection serves them.
func newStoreBackends(ctx context.Context, cfg *models.Config, services *Services) (store.ScheduleStore, store.ExecutionJournal, error) {
	opened := map[string]backendService{}

	open := func(name string) (backendService, error) {
		if svc, ok := opened[name]; ok {
			return svc, nil
		}
		var (
			svc backendService
			err error
		)
		switch name {
		case "formance":
			svc, err = formance.NewService(ctx, cfg.Formance, cfg.Store.SchedulesKey)
		default:
			svc, err = database.NewService(ctx, cfg.Database, cfg.Store.SchedulesKey)
		}
		if err != nil {
			return nil, fmt.Errorf("unable to open %s backend: %w", name, err)
		}
		opened[name] = svc
		services.closers = append(services.closers, svc.Close)
		return svc, nil
	}

	backend, err := open(cfg.Store.Backend)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Store.JournalBackend == "none" {
		zap.L().Warn("Execution journal disabled, stuck executions need manual reconciliation")
		return backend, store.NopJournal{}, nil
	}
	journal, err := open(cfg.Store.JournalBackend)
	if err != nil {
		return nil, nil, err
	}
	return backend, journal, nil
}

func (s *Services) initializeProviders(ctx context.Context, cfg *models.Config) error {
	httpClient, err := transport.NewHTTPClient(0)
	if err != nil {
		return err
	}

	if err := s.ConnectChain(ctx, cfg.Chain.RPCURL); err != nil {
		return err
	}

	s.Quotes = quote.NewClient(cfg.Quote, s.Assets.Chain.Id, httpClient)

	custodyClient, err := custody.NewClient(cfg.Custody, s.Assets.Chain.Id, s.Assets.Chain.Caip2, httpClient)
	if err != nil {
		return fmt.Errorf("unable to create custody client: %w", err)
	}
	s.Custody = custodyClient
	return nil
}

// ConnectChain opens the chain RPC client used as the balance oracle. Commands
// built on InitializeStoreOnly call it when they only need to read balances.
func (s *Services) ConnectChain(ctx context.Context, rpcURL string) error {
	if s.Chain != nil {
		return nil
	}
	chainClient, err := chain.NewClient(ctx, rpcURL)
	if err != nil {
		return err
	}
	s.Chain = chainClient
	s.closers = append(s.closers, chainClient.Close)
	return nil
}

func newEngine(cfg *models.Config, s *Services, oracle engine.BalanceOracle, quotes engine.QuoteProvider, submitter engine.TransactionSubmitter) *engine.Engine {
	return engine.New(s.Repository, s.Journal, s.Locker, oracle, quotes, submitter, engine.Options{
		StableToken:        s.Assets.Stable.Token(),
		VolatileToken:      s.Assets.Volatile.Token(),
		PeriodLength:       cfg.Engine.PeriodLength,
		SettleDelay:        cfg.Engine.SettleDelay,
		ApprovalMultiplier: cfg.Engine.ApprovalMultiplier,
		Concurrency:        cfg.Engine.Concurrency,
	})
}

// InitializePrime connects to Coinbase Prime and finds the default portfolio.
func InitializePrime(ctx context.Context) (*prime.Service, *models.Portfolio, error) {
	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		return nil, nil, err
	}

	primeService, err := prime.NewService(creds)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Finding default portfolio")
	defaultPortfolio, err := primeService.FindDefaultPortfolio(ctx)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("Using default portfolio",
		zap.String("name", defaultPortfolio.Name),
		zap.String("id", defaultPortfolio.Id))

	return primeService, defaultPortfolio, nil
}

func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	var missing []string
	if accessKey == "" {
		missing = append(missing, "PRIME_ACCESS_KEY")
	}
	if passphrase == "" {
		missing = append(missing, "PRIME_PASSPHRASE")
	}
	if signingKey == "" {
		missing = append(missing, "PRIME_SIGNING_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Prime API credentials: %s", strings.Join(missing, ", "))
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
