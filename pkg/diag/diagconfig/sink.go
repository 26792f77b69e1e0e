// sink.go composes the report sink described by Settings.

package diagconfig

import (
	"fmt"
	"log/slog"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/sinks/async"
	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/sinks/cxdb"
	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/sinks/multi"
	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/sinks/noop"
	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/sinks/sentry"
	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/sinks/webhook"
)

// ClientTag identifies this module's connections and contexts in cxdb.
const ClientTag = "diag"

// BuildSink returns one sink fanning out to every configured destination
// (webhook, Sentry, cxdb) behind a bounded async queue. With no destination
// it returns a noop sink. Closing the returned sink also closes any cxdb
// connection it opened.
func BuildSink(s Settings, logger *slog.Logger) (diag.Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dests []multi.Named
	var closers []func()
	fail := func(err error) (diag.Sink, error) {
		for _, c := range closers {
			c()
		}
		return nil, err
	}

	if s.ErrorReportingEndpoint != "" {
		dests = append(dests, multi.Named{Name: "webhook", Sink: webhook.NewWebhookSink(s.ErrorReportingEndpoint)})
	}
	if s.SentryDSN != "" {
		sink, err := sentry.Dial(s.SentryDSN, s.SentryEnvironment, s.AppVersion)
		if err != nil {
			return fail(err)
		}
		dests = append(dests, multi.Named{Name: "sentry", Sink: sink})
	}
	if s.CXDBAddr != "" {
		client, err := cxdbclient.Dial(s.CXDBAddr, cxdbclient.WithClientTag(ClientTag))
		if err != nil {
			return fail(fmt.Errorf("dial cxdb %s: %w", s.CXDBAddr, err))
		}
		closers = append(closers, func() { client.Close() })
		opts := []cxdb.Option{cxdb.WithClientTag(ClientTag)}
		if len(s.CXDBLabels) > 0 {
			opts = append(opts, cxdb.WithLabels(s.CXDBLabels...))
		}
		dests = append(dests, multi.Named{Name: "cxdb", Sink: cxdb.NewCXDBSink(client, opts...)})
	}

	if len(dests) == 0 {
		return noop.NewNoopSink(), nil
	}

	logger.Debug("diag: report sink configured", slog.Int("destinations", len(dests)))
	var sink diag.Sink = multi.NewNamed(dests...)
	sink = async.NewAsyncSink(sink, async.WithQueueSize(s.AsyncQueueSize), async.WithLogger(logger),
		async.WithOnDropped(func(n int) {
			logger.Warn("diag: report queue full, dropped oldest", slog.Int("count", n))
		}))
	return &ownedSink{Sink: sink, closers: closers}, nil
}

// ownedSink closes resources BuildSink opened after the sink itself.
type ownedSink struct {
	diag.Sink
	closers []func()
}

func (o *ownedSink) Close() error {
	err := o.Sink.Close()
	for _, c := range o.closers {
		c()
	}
	return err
}

