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

package trigger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"dca-engine-go/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner performs one engine pass.
type Runner interface {
	RunOnce(ctx context.Context) (*models.PassReport, error)
}

// PassTriggerConfig contains configuration for PassTrigger
type PassTriggerConfig struct {
	Runner   Runner
	Schedule string // cron expression or descriptor, e.g. "*/5 * * * *" or "@every 1m"
	Location *time.Location
	Output   io.Writer // pass summaries; defaults to stdout
}

// PassTrigger runs engine passes on a cron schedule inside the process. A
// pass that is still running when the next tick fires causes that tick to be
// skipped.
type PassTrigger struct {
	runner   Runner
	schedule string
	cron     *cron.Cron
	out      io.Writer

	mu         sync.Mutex
	lastReport *models.PassReport
	passes     int

	ctx    context.Context
	cancel context.CancelFunc
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewPassTrigger validates the schedule and builds the trigger.
func NewPassTrigger(cfg PassTriggerConfig) (*PassTrigger, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("trigger requires a runner")
	}
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid trigger schedule %q: %w", cfg.Schedule, err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	logger := zapCronLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &PassTrigger{
		runner:   cfg.Runner,
		schedule: cfg.Schedule,
		cron:     c,
		out:      out,
	}, nil
}

// Start registers the pass job and starts the scheduler. Passes run under a
// context derived from ctx and cancelled by Stop.
func (t *PassTrigger) Start(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)

	if _, err := t.cron.AddFunc(t.schedule, func() { t.runPass(t.ctx) }); err != nil {
		t.cancel()
		return fmt.Errorf("failed to schedule engine pass: %w", err)
	}
	t.cron.Start()

	zap.L().Info("Pass trigger started", zap.String("schedule", t.schedule))
	return nil
}

// Stop waits for a running pass to finish, then stops the scheduler.
func (t *PassTrigger) Stop() {
	zap.L().Info("Stopping pass trigger")
	<-t.cron.Stop().Done()
	if t.cancel != nil {
		t.cancel()
	}
	zap.L().Info("Pass trigger stopped")
}

// LastReport returns the most recent pass report, or nil before the first pass.
func (t *PassTrigger) LastReport() *models.PassReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastReport
}

// Passes returns how many passes have completed.
func (t *PassTrigger) Passes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.passes
}

func (t *PassTrigger) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx = models.WithExecutionContext(ctx, &models.ExecutionContext{Trigger: "cron"})

	report, err := t.runner.RunOnce(ctx)
	if err != nil {
		fmt.Fprintf(t.out, "\n%s[%s] Pass failed: %s%s\n", colorRed, time.Now().Format("15:04:05"), err, colorReset)
		zap.L().Error("Scheduled pass failed", zap.Error(err))
		return
	}

	t.mu.Lock()
	t.lastReport = report
	t.passes++
	t.mu.Unlock()

	PrintPassReport(t.out, report)
}

// zapCronLogger adapts the global zap logger to cron.Logger.
type zapCronLogger struct{}

func (zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.L().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zap.L().Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
