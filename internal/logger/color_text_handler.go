package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ANSI level colors.
const (
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorReset  = "\033[0m"
)

// ColorTextHandler renders launcher records in a compact single-line form,
//
//	I 15:04:05 miner started pid=4242
//
// with the level letter colored. The short format keeps launcher lines
// visually distinct from the miner's forwarded output stream.
type ColorTextHandler struct {
	mu       *sync.Mutex
	w        io.Writer
	level    slog.Leveler
	showTime bool
	prefix   string // preformatted WithAttrs/WithGroup attrs
	group    string
}

// NewColorTextHandler creates a handler writing to w. showTime controls the
// HH:MM:SS column; tests turn it off for stable output.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &ColorTextHandler{
		mu:       &sync.Mutex{},
		w:        w,
		level:    level,
		showTime: showTime,
	}
}

func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(levelColor(r.Level))
	b.WriteByte(levelLetter(r.Level))
	b.WriteString(colorReset)
	if h.showTime && !r.Time.IsZero() {
		b.WriteByte(' ')
		b.WriteString(r.Time.Format("15:04:05"))
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	var b strings.Builder
	for _, a := range attrs {
		appendAttr(&b, h2.group, a)
	}
	h2.prefix = h.prefix + b.String()
	return h2
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	h2 := h.clone()
	if name != "" {
		if h2.group != "" {
			h2.group += "."
		}
		h2.group += name
	}
	return h2
}

func (h *ColorTextHandler) clone() *ColorTextHandler {
	c := *h
	return &c
}

func levelLetter(l slog.Level) byte {
	switch {
	case l < slog.LevelInfo:
		return 'D'
	case l < slog.LevelWarn:
		return 'I'
	case l < slog.LevelError:
		return 'W'
	default:
		return 'E'
	}
}

func levelColor(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return colorCyan
	case l < slog.LevelWarn:
		return colorGreen
	case l < slog.LevelError:
		return colorYellow
	default:
		return colorRed
	}
}

func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(b, key, ga)
		}
		return
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Resolve().Any())
}
