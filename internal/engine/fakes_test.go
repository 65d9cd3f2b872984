package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"dca-engine-go/internal/lock"
	"dca-engine-go/internal/models"
	"dca-engine-go/internal/quote"
	"dca-engine-go/internal/store"
)

const (
	usdcAddress   = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	ethAddress    = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
	routerAddress = "0x0000000000001fF3684f28c67538d4D072C22734"
	periodLength  = 7 * 24 * time.Hour
)

var baseTime = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

type fakeOracle struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	err      error
	calls    int
}

func (f *fakeOracle) BalanceOf(_ context.Context, token, owner string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if token != usdcAddress {
		return nil, fmt.Errorf("unexpected token %s", token)
	}
	if b, ok := f.balances[strings.ToLower(owner)]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeOracle) set(owner string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[strings.ToLower(owner)] = big.NewInt(amount)
}

func (f *fakeOracle) debit(owner string, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(owner)
	f.balances[key] = new(big.Int).Sub(f.balances[key], amount)
}

func (f *fakeOracle) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQuotes struct {
	mu              sync.Mutex
	allowanceTarget string
	errs            []error // consumed one per call
	requests        []quote.Request
	// onQuote runs before the quote is returned, outside the lock.
	onQuote func()
}

func (f *fakeQuotes) GetQuote(_ context.Context, req quote.Request) (*models.Quote, error) {
	f.mu.Lock()
	onQuote := f.onQuote
	f.mu.Unlock()
	if onQuote != nil {
		onQuote()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.Quote{
		Transaction:     models.ChainTransaction{To: routerAddress, Data: "0xswapdata", Value: "0x0"},
		AllowanceTarget: f.allowanceTarget,
		SellAmount:      req.SellAmount,
	}, nil
}

func (f *fakeQuotes) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeQuotes) LastRequest() quote.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type submission struct {
	walletId string
	tx       models.ChainTransaction
}

type fakeSubmitter struct {
	mu          sync.Mutex
	submissions []submission
	approveErr  error
	swapErr     error
	// onSwap runs before a swap is acknowledged.
	onSwap func(walletId string)
	seq    int
}

func (f *fakeSubmitter) SendTransaction(_ context.Context, walletId string, tx models.ChainTransaction) (*models.SubmittedTransaction, error) {
	f.mu.Lock()
	f.submissions = append(f.submissions, submission{walletId: walletId, tx: tx})
	f.seq++
	seq := f.seq
	isSwap := tx.To == routerAddress
	approveErr, swapErr, onSwap := f.approveErr, f.swapErr, f.onSwap
	f.mu.Unlock()

	if !isSwap {
		if approveErr != nil {
			return nil, approveErr
		}
		return &models.SubmittedTransaction{Hash: fmt.Sprintf("0xapprove%d", seq)}, nil
	}
	if swapErr != nil {
		return nil, swapErr
	}
	if onSwap != nil {
		onSwap(walletId)
	}
	return &models.SubmittedTransaction{Hash: fmt.Sprintf("0xswap%d", seq)}, nil
}

func (f *fakeSubmitter) Swaps() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []submission
	for _, s := range f.submissions {
		if s.tx.To == routerAddress {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSubmitter) Approvals() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []submission
	for _, s := range f.submissions {
		if s.tx.To != routerAddress {
			out = append(out, s)
		}
	}
	return out
}

type memJournal struct {
	mu      sync.Mutex
	records map[string]models.ExecutionRecord
	err     error
}

func newMemJournal() *memJournal {
	return &memJournal{records: make(map[string]models.ExecutionRecord)}
}

func (j *memJournal) RecordExecution(_ context.Context, p store.RecordExecutionParams) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	if _, ok := j.records[p.Reference]; ok {
		return nil
	}
	j.records[p.Reference] = models.ExecutionRecord{
		Reference:    p.Reference,
		UserId:       p.UserId,
		WalletId:     p.WalletId,
		Period:       p.Period,
		SellAmount:   p.SellAmount,
		TxHash:       p.TxHash,
		ApprovalHash: p.ApprovalHash,
		ExecutedAt:   p.ExecutedAt,
	}
	return nil
}

func (j *memJournal) FindExecution(_ context.Context, reference string) (*models.ExecutionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if r, ok := j.records[reference]; ok {
		return &r, nil
	}
	return nil, nil
}

func (j *memJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine    *Engine
	repo      *store.Repository
	backend   *store.MemoryStore
	locker    *lock.Local
	oracle    *fakeOracle
	quotes    *fakeQuotes
	submitter *fakeSubmitter
	journal   *memJournal
	clock     *clock
	sleeps    []time.Duration
}

func newHarness(t *testing.T, schedules ...models.Schedule) *harness {
	t.Helper()
	h := &harness{
		backend:   store.NewMemoryStore(),
		locker:    lock.NewLocal(),
		oracle:    &fakeOracle{balances: make(map[string]*big.Int)},
		quotes:    &fakeQuotes{},
		submitter: &fakeSubmitter{},
		journal:   newMemJournal(),
		clock:     &clock{now: baseTime},
	}
	h.repo = store.NewRepository(h.backend, h.locker, 10)
	h.engine = New(h.repo, h.journal, h.locker, h.oracle, h.quotes, h.submitter, Options{
		StableToken:        models.Token{Symbol: "USDC", Address: usdcAddress, Decimals: 6},
		VolatileToken:      models.Token{Symbol: "ETH", Address: ethAddress, Decimals: 18},
		PeriodLength:       periodLength,
		SettleDelay:        2 * time.Second,
		ApprovalMultiplier: 2,
		Concurrency:        4,
	})
	h.engine.now = h.clock.Now
	var sleepMu sync.Mutex
	h.engine.sleep = func(_ context.Context, d time.Duration) error {
		sleepMu.Lock()
		defer sleepMu.Unlock()
		h.sleeps = append(h.sleeps, d)
		return nil
	}

	if len(schedules) > 0 {
		if err := h.repo.WriteAll(context.Background(), schedules); err != nil {
			t.Fatalf("failed to seed schedules: %v", err)
		}
	}
	return h
}

// secondEngine builds an engine over the same store, journal and providers
// but with its own in-process locker, like a CLI running beside the server.
func (h *harness) secondEngine() *Engine {
	locker := lock.NewLocal()
	repo := store.NewRepository(h.backend, locker, 10)
	other := New(repo, h.journal, locker, h.oracle, h.quotes, h.submitter, h.engine.Options())
	other.now = h.clock.Now
	other.sleep = func(context.Context, time.Duration) error { return nil }
	return other
}

func (h *harness) schedule(t *testing.T, walletId string) models.Schedule {
	t.Helper()
	s, err := h.repo.FindByWallet(context.Background(), walletId)
	if err != nil {
		t.Fatalf("FindByWallet failed: %v", err)
	}
	if s == nil {
		t.Fatalf("schedule for wallet %s not found", walletId)
	}
	return *s
}

func (h *harness) runOnce(t *testing.T) *models.PassReport {
	t.Helper()
	report, err := h.engine.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	return report
}

func dueSchedule(userId, walletId, address string, executed, total int) models.Schedule {
	return models.Schedule{
		UserId:            userId,
		WalletId:          walletId,
		WalletAddress:     address,
		ExecutedPeriods:   executed,
		TotalPeriods:      total,
		NextExecutionTime: baseTime.Add(-time.Minute).UnixMilli(),
		IsActive:          true,
		CreatedAt:         baseTime.Add(-30 * 24 * time.Hour).UnixMilli(),
	}
}

func walletAddress(n int) string {
	return fmt.Sprintf("0x%040d", n)
}

var errBoom = errors.New("boom")
