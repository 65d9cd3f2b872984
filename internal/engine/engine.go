package engine

import (
	"context"
	"errors"
	"math/big"
	"time"

	"dca-engine-go/internal/lock"
	"dca-engine-go/internal/models"
	"dca-engine-go/internal/quote"
	"dca-engine-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrExecutionInProgress is returned when another unit holds the schedule's lock.
	ErrExecutionInProgress = errors.New("execution already in progress")

	// ErrUnreconciled is returned for a schedule whose previous swap was
	// submitted but never committed.
	ErrUnreconciled = errors.New("unreconciled execution")

	// ErrNoInFlightExecution is returned by Reconcile when there is nothing to resolve.
	ErrNoInFlightExecution = errors.New("no in-flight execution")
)

// BalanceOracle reads on-chain token balances.
type BalanceOracle interface {
	BalanceOf(ctx context.Context, token, owner string) (*big.Int, error)
}

// QuoteProvider prices a swap and returns its executable transaction.
type QuoteProvider interface {
	GetQuote(ctx context.Context, req quote.Request) (*models.Quote, error)
}

// TransactionSubmitter signs and broadcasts a transaction from a custody wallet.
type TransactionSubmitter interface {
	SendTransaction(ctx context.Context, walletId string, tx models.ChainTransaction) (*models.SubmittedTransaction, error)
}

// Options are the engine's tunables.
type Options struct {
	StableToken        models.Token
	VolatileToken      models.Token
	PeriodLength       time.Duration
	SettleDelay        time.Duration
	ApprovalMultiplier int64
	Concurrency        int
}

// Engine runs DCA execution units against the schedule collection.
type Engine struct {
	repo      *store.Repository
	journal   store.ExecutionJournal
	locker    lock.Locker
	oracle    BalanceOracle
	quotes    QuoteProvider
	submitter TransactionSubmitter
	opts      Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(repo *store.Repository, journal store.ExecutionJournal, locker lock.Locker, oracle BalanceOracle, quotes QuoteProvider, submitter TransactionSubmitter, opts Options) *Engine {
	if journal == nil {
		journal = store.NopJournal{}
	}
	if opts.ApprovalMultiplier < 1 {
		opts.ApprovalMultiplier = 2
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PeriodLength <= 0 {
		opts.PeriodLength = 7 * 24 * time.Hour
	}
	return &Engine{
		repo:      repo,
		journal:   journal,
		locker:    locker,
		oracle:    oracle,
		quotes:    quotes,
		submitter: submitter,
		opts:      opts,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Options returns the engine's effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// RunOnce performs one pass over the whole collection. A failed read of the
// collection aborts the pass; every other failure is confined to the
// schedule's own result.
func (e *Engine) RunOnce(ctx context.Context) (*models.PassReport, error) {
	ctx, ec := ensureExecutionContext(ctx, "cron")
	logger := zap.L().With(zap.String("run_id", ec.RunId), zap.String("trigger", ec.Trigger))

	report := &models.PassReport{RunId: ec.RunId, StartedAt: e.now()}

	schedules, err := e.repo.ReadAll(ctx)
	if err != nil {
		logger.Error("Engine pass aborted: unable to read schedules", zap.Error(err))
		return nil, err
	}
	logger.Info("Engine pass started", zap.Int("schedules", len(schedules)))

	results := make([]models.ExecutionResult, len(schedules))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i := range schedules {
		g.Go(func() error {
			results[i] = e.processScheduled(ctx, schedules[i])
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	report.FinishedAt = e.now()

	logger.Info("Engine pass finished",
		zap.Int("executed", report.Count(models.OutcomeExecuted)),
		zap.Int("completed", report.Count(models.OutcomeCompleted)),
		zap.Int("skipped", report.Count(models.OutcomeSkipped)),
		zap.Int("errors", report.Count(models.OutcomeError)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// processScheduled handles one schedule of a pass.
func (e *Engine) processScheduled(ctx context.Context, snapshot models.Schedule) models.ExecutionResult {
	now := e.now()
	if !snapshot.IsActive {
		return skipped(&snapshot, "inactive")
	}
	if !snapshot.IsDue(now) {
		return skipped(&snapshot, "not due")
	}
	if ctx.Err() != nil {
		return skipped(&snapshot, "pass cancelled")
	}

	lease, ok, err := e.locker.TryAcquire(ctx, WalletLockKey(snapshot.WalletId))
	if err != nil {
		return failed(&snapshot, "unable to lock schedule: "+err.Error())
	}
	if !ok {
		return skipped(&snapshot, ErrExecutionInProgress.Error())
	}
	defer e.release(ctx, lease, snapshot.WalletId)

	// The unit must not be torn down halfway through by the caller.
	ctx = context.WithoutCancel(ctx)

	current, err := e.repo.FindByWallet(ctx, snapshot.WalletId)
	if err != nil {
		return failed(&snapshot, "unable to read schedule: "+err.Error())
	}
	if current == nil || !current.SameInstance(&snapshot) {
		return skipped(&snapshot, "schedule replaced or cancelled")
	}
	if !current.IsDue(e.now()) {
		return skipped(current, "not due")
	}

	return e.runLocked(ctx, current)
}

// runLocked applies the state machine to a schedule whose lock is held.
func (e *Engine) runLocked(ctx context.Context, s *models.Schedule) models.ExecutionResult {
	if s.IsComplete() {
		return e.complete(ctx, s)
	}
	if s.HasInFlightExecution() {
		return e.resolveInFlight(ctx, s)
	}
	return e.executeUnit(ctx, s)
}

func (e *Engine) complete(ctx context.Context, s *models.Schedule) models.ExecutionResult {
	if err := e.markCompleted(ctx, s); err != nil && !errors.Is(err, errScheduleGone) {
		return failed(s, "unable to mark schedule completed: "+err.Error())
	}
	zap.L().Info("Schedule completed",
		zap.String("user_id", s.UserId),
		zap.String("wallet_id", s.WalletId),
		zap.Int("executed_periods", s.ExecutedPeriods))

	res := result(s, models.OutcomeCompleted, "all periods executed")
	return res
}

// resolveInFlight handles a schedule carrying a write-ahead marker. When the
// journal has the execution the commit is replayed; otherwise the schedule is
// held until an operator reconciles it.
func (e *Engine) resolveInFlight(ctx context.Context, s *models.Schedule) models.ExecutionResult {
	reference := s.ExecutionReference()
	record, err := e.journal.FindExecution(ctx, reference)
	if err != nil {
		return failed(s, "unable to read execution journal: "+err.Error())
	}
	if record == nil {
		zap.L().Warn("Schedule has an unreconciled execution",
			zap.String("user_id", s.UserId),
			zap.String("wallet_id", s.WalletId),
			zap.String("reference", reference),
			zap.String("in_flight_run_id", s.ExecutionInFlightId))
		res := failed(s, ErrUnreconciled.Error())
		res.RequiresReconciliation = true
		return res
	}

	committed, err := e.commitSuccess(ctx, s, record.ExecutedAt)
	if err != nil && !errors.Is(err, errScheduleGone) {
		res := failed(s, "unable to replay journaled execution: "+err.Error())
		res.TransactionHash = record.TxHash
		res.RequiresReconciliation = true
		return res
	}
	if committed == nil {
		committed = s
	}

	zap.L().Info("Reconciled execution from journal",
		zap.String("user_id", s.UserId),
		zap.String("wallet_id", s.WalletId),
		zap.String("reference", reference),
		zap.String("tx_hash", record.TxHash))

	res := result(committed, models.OutcomeExecuted, "reconciled from execution journal")
	res.TransactionHash = record.TxHash
	res.ApprovalHash = record.ApprovalHash
	res.SellAmount = record.SellAmount
	if amount, ok := new(big.Int).SetString(record.SellAmount, 10); ok {
		res.SellAmountHuman = FormatAmount(amount, e.opts.StableToken)
	}
	return res
}

func (e *Engine) release(ctx context.Context, lease lock.Lease, walletId string) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		zap.L().Warn("Failed to release schedule lock",
			zap.String("wallet_id", walletId),
			zap.Error(err))
	}
}

// WalletLockKey is the lock key guarding every operation that spends from a wallet.
func WalletLockKey(walletId string) string {
	return "wallet:" + walletId
}

func ensureExecutionContext(ctx context.Context, trigger string) (context.Context, *models.ExecutionContext) {
	ec := models.GetExecutionContext(ctx)
	if ec != nil && ec.RunId != "" {
		return ctx, ec
	}
	next := &models.ExecutionContext{RunId: uuid.New().String(), Trigger: trigger}
	if ec != nil && ec.Trigger != "" {
		next.Trigger = ec.Trigger
	}
	return models.WithExecutionContext(ctx, next), next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func result(s *models.Schedule, outcome models.Outcome, detail string) models.ExecutionResult {
	return models.ExecutionResult{
		UserId:          s.UserId,
		WalletId:        s.WalletId,
		Outcome:         outcome,
		Detail:          detail,
		ExecutedPeriods: s.ExecutedPeriods,
		TotalPeriods:    s.TotalPeriods,
	}
}

func skipped(s *models.Schedule, detail string) models.ExecutionResult {
	return result(s, models.OutcomeSkipped, detail)
}

func failed(s *models.Schedule, detail string) models.ExecutionResult {
	return result(s, models.OutcomeError, detail)
}
