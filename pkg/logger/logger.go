// Package logger configures the process-wide slog handler. Request-scoped
// attributes (request id, user id) stored in a context are added to every
// record logged with that context, so handlers can call slog.InfoContext
// directly or use FromContext.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// fields are the request-scoped attributes carried in a context.
type fields struct {
	requestID string
	userID    string
}

func fieldsFrom(ctx context.Context) fields {
	if ctx == nil {
		return fields{}
	}
	f, _ := ctx.Value(ctxKey{}).(fields)
	return f
}

// Setup installs the default logger writing to stdout.
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter installs the default logger writing to w. The terminal client
// points it at a file so log lines do not tear the screen.
func SetupWriter(w io.Writer, level, format string) {
	slog.SetDefault(slog.New(NewHandler(w, level, format)))
}

// NewHandler builds a JSON or text handler that also emits the request
// attributes found in the record's context.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return contextHandler{inner}
}

// ParseLevel accepts debug, info, warn and error in any case, plus offsets
// such as "debug+2". Anything else is info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	f := fieldsFrom(ctx)
	f.requestID = requestID
	return context.WithValue(ctx, ctxKey{}, f)
}

// WithUserID records the authenticated subject for later log lines in the
// request.
func WithUserID(ctx context.Context, userID string) context.Context {
	f := fieldsFrom(ctx)
	f.userID = userID
	return context.WithValue(ctx, ctxKey{}, f)
}

// FromContext returns the default logger with the request attributes of ctx
// already bound. Use it when the logger is passed on to code that logs
// without a context.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if attrs := fieldsFrom(ctx).attrs(); len(attrs) > 0 {
		l = slog.New(l.Handler().WithAttrs(attrs))
	}
	return l
}

func (f fields) attrs() []slog.Attr {
	var out []slog.Attr
	if f.requestID != "" {
		out = append(out, slog.String("request_id", f.requestID))
	}
	if f.userID != "" {
		out = append(out, slog.String("user_id", f.userID))
	}
	return out
}

type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := fieldsFrom(ctx).attrs(); len(attrs) > 0 {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
