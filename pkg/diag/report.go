// report.go assembles error reports and delivers them to the configured sink.

package diag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// MaxReportLogs is the number of most recent log entries attached to a report.
const MaxReportLogs = 100

// CreateErrorReport builds a report for err with a fresh system snapshot and
// the most recent log entries. The report is returned unscrubbed so callers
// can inspect it locally. A nil err yields a report with an empty ErrorInfo.
func (e *Engine) CreateErrorReport(err error, rc ReportContext) ErrorReport {
	report := ErrorReport{
		ID:         uuid.NewString(),
		Timestamp:  e.now(),
		Context:    rc,
		SystemInfo: e.GetSystemInfo(),
		Logs:       e.logs.Recent(MaxReportLogs),
	}
	if err != nil {
		report.Error = ErrorInfo{
			Message: err.Error(),
			Type:    errorType(err),
			Stack:   errorStack(err),
		}
	}
	report.Fingerprint = Fingerprint(report)
	return report
}

// ReportError creates a report for err, scrubs it when scrubbing is enabled
// and writes it to the sink. The returned report is the one delivered.
// A sink failure is returned but the report is still returned in full.
func (e *Engine) ReportError(ctx context.Context, err error, rc ReportContext) (ErrorReport, error) {
	report := e.CreateErrorReport(err, rc)
	if s := e.opts.scrubber; s != nil {
		report = s.ScrubReport(report)
	}
	if werr := e.opts.sink.Write(ctx, report); werr != nil {
		e.logger.Warn("diag: delivering error report failed",
			slog.String("report_id", report.ID),
			slog.String("fingerprint", report.Fingerprint),
			slog.String("error", werr.Error()),
		)
		return report, fmt.Errorf("diag: write report %s: %w", report.ID, werr)
	}
	return report, nil
}
