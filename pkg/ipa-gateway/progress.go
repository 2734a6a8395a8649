package ipagateway

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type progressSink interface {
	NotifyProgress(context.Context, *mcp.ProgressNotificationParams) error
}

// progressReporter counts in-flight tool calls and, when the caller asked
// for progress, brackets each call with a 0/1 and a 1/1 notification.
type progressReporter struct {
	inflight atomic.Int64
	logger   *slog.Logger
}

func newProgressReporter(logger *slog.Logger) *progressReporter {
	return &progressReporter{logger: logger}
}

// begin marks a call as started and returns the func that marks it done.
func (pr *progressReporter) begin(ctx context.Context, sink progressSink, token any, tool string) func(ok bool) {
	pr.inflight.Add(1)
	if sink == nil || !validProgressToken(token) {
		return func(bool) { pr.inflight.Add(-1) }
	}
	pr.notify(ctx, sink, &mcp.ProgressNotificationParams{
		ProgressToken: token,
		Progress:      0,
		Total:         1,
		Message:       tool + " started",
	})
	return func(ok bool) {
		pr.inflight.Add(-1)
		msg := tool + " finished"
		if !ok {
			msg = tool + " failed"
		}
		pr.notify(ctx, sink, &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      1,
			Total:         1,
			Message:       msg,
		})
	}
}

// InFlight reports how many tool calls are running.
func (pr *progressReporter) InFlight() int64 {
	return pr.inflight.Load()
}

func (pr *progressReporter) notify(ctx context.Context, sink progressSink, params *mcp.ProgressNotificationParams) {
	if err := sink.NotifyProgress(ctx, params); err != nil && pr.logger != nil {
		pr.logger.Debug("progress notification dropped", "token", params.ProgressToken, "error", err)
	}
}

// validProgressToken accepts the string and integer tokens MCP allows.
// Numbers arrive from JSON as float64.
func validProgressToken(token any) bool {
	switch v := token.(type) {
	case string:
		return v != ""
	case int, int32, int64:
		return true
	case float64:
		return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Trunc(v) == v
	default:
		return false
	}
}
