// Package cxdb provides a sink that persists error reports to cxdb as
// SystemMessage conversation items.
package cxdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// Client is the subset of *cxdbclient.Client the sink uses.
type Client interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// Option configures the cxdb sink.
type Option func(*cxdbSink)

// WithLabels sets the labels of contexts the sink creates.
func WithLabels(labels ...string) Option {
	return func(s *cxdbSink) {
		s.labels = labels
	}
}

// WithClientTag sets the client tag of contexts the sink creates.
func WithClientTag(tag string) Option {
	return func(s *cxdbSink) {
		s.clientTag = tag
	}
}

// WithContextPerReport creates a fresh context for every report that is
// not bound to one, instead of sharing one context per sink.
func WithContextPerReport() Option {
	return func(s *cxdbSink) {
		s.perReport = true
	}
}

type cxdbSink struct {
	client    Client
	labels    []string
	clientTag string
	perReport bool

	mu        sync.Mutex
	sessionID uint64
	closed    bool
}

// NewCXDBSink creates a sink writing through client. Reports whose context
// carries an ID from diag.WithContextID are appended there. Others go to a
// context the sink creates on first use and reuses afterwards.
func NewCXDBSink(client Client, opts ...Option) diag.Sink {
	s := &cxdbSink{
		client:    client,
		labels:    []string{"diagnostics", "error"},
		clientTag: "diag",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *cxdbSink) Write(ctx context.Context, report diag.ErrorReport) error {
	contextID, created, err := s.resolveContext(ctx)
	if err != nil {
		return err
	}

	payload, err := cxdbclient.EncodeMsgpack(s.conversationItem(report, created))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = s.client.AppendTurn(ctx, &cxdbclient.AppendRequest{
		ContextID:      contextID,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: report.ID,
	})
	if err != nil {
		return fmt.Errorf("append turn to context %d: %w", contextID, err)
	}
	return nil
}

// resolveContext reports created=true when the context was made for this
// write, so its first turn carries the context metadata.
func (s *cxdbSink) resolveContext(ctx context.Context) (id uint64, created bool, err error) {
	if id, ok := diag.ContextIDFromContext(ctx); ok {
		if s.isClosed() {
			return 0, false, diag.ErrClosed
		}
		return id, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false, diag.ErrClosed
	}
	if !s.perReport && s.sessionID != 0 {
		return s.sessionID, false, nil
	}

	head, err := s.client.CreateContext(ctx, 0)
	if err != nil {
		return 0, false, fmt.Errorf("create context: %w", err)
	}
	if !s.perReport {
		s.sessionID = head.ContextID
	}
	return head.ContextID, true, nil
}

func (s *cxdbSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *cxdbSink) conversationItem(report diag.ErrorReport, created bool) *cxdtypes.ConversationItem {
	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: report.Timestamp.UnixMilli(),
		ID:        report.ID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title(report.Error),
			Content: reportContent(report),
		},
	}
	if created {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    s.labels,
			ClientTag: s.clientTag,
		}
	}
	return item
}

// title is "<type>: <message>" capped at 100 bytes.
func title(info diag.ErrorInfo) string {
	const maxLen = 100
	t := info.Type
	switch {
	case t == "":
		t = info.Message
	case info.Message != "":
		t += ": " + info.Message
	}
	if t == "" {
		t = "error report"
	}
	if len(t) > maxLen {
		t = t[:maxLen-3] + "..."
	}
	return t
}

// reportContent is the full report as JSON.
func reportContent(report diag.ErrorReport) string {
	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Sprintf(`{"id":%q,"encode_error":%q}`, report.ID, err.Error())
	}
	return string(b)
}

// Flush is a no-op; writes are synchronous.
func (s *cxdbSink) Flush(ctx context.Context) error {
	return nil
}

// Close marks the sink closed. The client is owned by the caller.
func (s *cxdbSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
