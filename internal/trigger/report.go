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
	"fmt"
	"io"
	"time"

	"dca-engine-go/internal/models"
)

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// PrintPassReport writes a one-line summary of the pass followed by one line
// per schedule that was not simply skipped as not due.
func PrintPassReport(w io.Writer, report *models.PassReport) {
	if report == nil {
		return
	}

	fmt.Fprintf(w, "\n%s[%s] Pass %s: %d schedules, %d executed, %d completed, %d skipped, %d errors (%s)%s\n",
		colorCyan,
		report.FinishedAt.Format("15:04:05"),
		shortId(report.RunId),
		len(report.Results),
		report.Count(models.OutcomeExecuted),
		report.Count(models.OutcomeCompleted),
		report.Count(models.OutcomeSkipped),
		report.Count(models.OutcomeError),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		colorReset)

	for _, res := range report.Results {
		if res.Outcome == models.OutcomeSkipped && (res.Detail == "not due" || res.Detail == "inactive") {
			continue
		}
		fmt.Fprintln(w, FormatResult(res))
	}
}

// FormatResult renders one result as a colored console line.
func FormatResult(res models.ExecutionResult) string {
	color, symbol := colorGray, "-"
	switch res.Outcome {
	case models.OutcomeExecuted:
		color, symbol = colorGreen, "✓"
	case models.OutcomeCompleted:
		color, symbol = colorCyan, "●"
	case models.OutcomeSkipped:
		color, symbol = colorYellow, "~"
	case models.OutcomeError:
		color, symbol = colorRed, "✗"
	}

	line := fmt.Sprintf("  %s%s %s %s %d/%d", color, symbol, shortId(res.WalletId), res.Outcome, res.ExecutedPeriods, res.TotalPeriods)
	if res.SellAmountHuman != "" {
		line += " | " + res.SellAmountHuman
	}
	if res.TransactionHash != "" {
		line += " | " + shortId(res.TransactionHash)
	}
	if res.Detail != "" {
		line += " | " + res.Detail
	}
	if res.RequiresReconciliation {
		line += " | RECONCILE"
	}
	return line + colorReset
}

func shortId(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
