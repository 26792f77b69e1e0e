// slog.go bridges log/slog into the engine's log buffer.

package diag

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// SlogHandler returns a slog.Handler that records into the engine's log
// buffer under module. Attributes become entry data; groups nest as maps.
// Levels map to the nearest of debug, info, warn and error.
//
//	logger := slog.New(engine.SlogHandler("checkout"))
//	logger.Warn("cart expired", "cart_id", id)
func (e *Engine) SlogHandler(module string) slog.Handler {
	return &slogHandler{logs: e.logs, module: module}
}

type slogHandler struct {
	logs   *LogStore
	module string
	attrs  []slog.Attr // pre-resolved attrs, already nested under groups
	groups []string
}

func slogLevel(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func (h *slogHandler) Enabled(_ context.Context, l slog.Level) bool {
	return h.logs.Accepts(slogLevel(l))
}

func (h *slogHandler) Handle(_ context.Context, r slog.Record) error {
	var data map[string]any
	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		data = make(map[string]any, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			addAttr(data, a)
		}
		if r.NumAttrs() > 0 {
			target := data
			for _, g := range h.groups {
				sub, ok := target[g].(map[string]any)
				if !ok {
					sub = make(map[string]any)
					target[g] = sub
				}
				target = sub
			}
			r.Attrs(func(a slog.Attr) bool {
				addAttr(target, a)
				return true
			})
		}
	}
	h.logs.Log(slogLevel(r.Level), h.module, r.Message, data)
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nested := slices.Clone(attrs)
	for i := len(h.groups) - 1; i >= 0; i-- {
		nested = []slog.Attr{{Key: h.groups[i], Value: slog.GroupValue(nested...)}}
	}
	clone := *h
	clone.attrs = append(slices.Clip(h.attrs), nested...)
	return &clone
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clip(h.groups), name)
	return &clone
}

func addAttr(dst map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return
		}
		// an empty key inlines the group
		target := dst
		if a.Key != "" {
			sub, ok := dst[a.Key].(map[string]any)
			if !ok {
				sub = make(map[string]any, len(group))
				dst[a.Key] = sub
			}
			target = sub
		}
		for _, ga := range group {
			addAttr(target, ga)
		}
		return
	}
	dst[a.Key] = attrValue(a.Value)
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}
