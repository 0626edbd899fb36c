// Package logging provides a colorized slog.Handler used across lorekeeper's
// binaries and services.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"
)

// PrettyHandlerOptions configures a PrettyHandler.
type PrettyHandlerOptions struct {
	SlogOpts slog.HandlerOptions
}

// PrettyHandler renders log records as a timestamped, colorized single line
// followed by a compact JSON object of the record's attributes. It wraps a
// slog.JSONHandler for level/attr bookkeeping and does its own rendering in
// Handle.
type PrettyHandler struct {
	slog.Handler
	l    *zeroWriter
	mu   *sync.Mutex
	out  io.Writer
}

type zeroWriter struct{ w io.Writer }

func (z *zeroWriter) Write(p []byte) (int, error) { return z.w.Write(p) }

// NewPrettyHandler builds a PrettyHandler writing to out.
func NewPrettyHandler(out io.Writer, opts PrettyHandlerOptions) *PrettyHandler {
	return &PrettyHandler{
		Handler: slog.NewJSONHandler(out, &opts.SlogOpts),
		l:       &zeroWriter{w: out},
		mu:      &sync.Mutex{},
		out:     out,
	}
}

// Handle renders a single record as "[HH:MM:SS.mmm] LEVEL: message {attrs}".
func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.CyanString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	fields := make(map[string]any, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	timeStr := r.Time.Format("[15:04:05.000]")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = fmt.Fprintf(h.out, "%s %s %s %s\n", timeStr, level, color.WhiteString(r.Message), string(b))
	return err
}

// New builds an slog.Logger backed by a PrettyHandler at the given level.
func New(out io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewPrettyHandler(out, PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: level},
	}))
}
