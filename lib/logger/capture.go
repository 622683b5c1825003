package logger

import (
	"context"
	"log/slog"
	"sync"
)

// Capture is a slog.Handler that keeps every record in memory.
type Capture struct {
	mu      sync.Mutex
	records []slog.Record
	attrs   []slog.Attr
	parent  *Capture
}

var _ slog.Handler = &Capture{}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Logger() *slog.Logger {
	return slog.New(c)
}

func (c *Capture) root() *Capture {
	if c.parent != nil {
		return c.parent.root()
	}
	return c
}

func (c *Capture) Enabled(context.Context, slog.Level) bool {
	return true
}

func (c *Capture) Handle(_ context.Context, r slog.Record) error {
	rec := r.Clone()
	rec.AddAttrs(c.attrs...)
	root := c.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.records = append(root.records, rec)
	return nil
}

func (c *Capture) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, c.attrs...), attrs...)
	return &Capture{attrs: merged, parent: c.root()}
}

func (c *Capture) WithGroup(string) slog.Handler {
	return c
}

func (c *Capture) Records() []slog.Record {
	root := c.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return append([]slog.Record{}, root.records...)
}

// Count returns how many records at exactly level were captured.
func (c *Capture) Count(level slog.Level) int {
	n := 0
	for _, r := range c.Records() {
		if r.Level == level {
			n++
		}
	}
	return n
}
