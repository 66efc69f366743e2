// Package progress defines the callback a flattening run reports through
// and a few adapters around it.
package progress

import (
	"log/slog"
	"strconv"
	"time"
)

// Func is called after each group with the number of groups processed so
// far and the expected total. total is 0 when it is not known.
type Func func(processed, total int)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Percent returns processed/total as a percentage, or 0 when total is
// unknown
func Percent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(processed) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Status returns the label shown next to a progress bar
func Status(processed, total int) string {
	if total > 0 && processed >= total {
		return StatusCompleted
	}
	return StatusProcessing
}

// Noop discards every update
func Noop(processed, total int) {}

// Multi fans one update out to several callbacks. Nil entries are skipped.
func Multi(fns ...Func) Func {
	active := make([]Func, 0, len(fns))
	for _, fn := range fns {
		if fn != nil {
			active = append(active, fn)
		}
	}

	switch len(active) {
	case 0:
		return Noop
	case 1:
		return active[0]
	}

	return func(processed, total int) {
		for _, fn := range active {
			fn(processed, total)
		}
	}
}

// Throttle forwards an update only when the whole percentage changes or
// the run reaches its total. With an unknown total every n-th update is
// forwarded.
func Throttle(fn Func, every int) Func {
	if fn == nil {
		return Noop
	}
	if every < 1 {
		every = 1
	}

	lastPercent := -1
	return func(processed, total int) {
		if total <= 0 {
			if processed%every == 0 {
				fn(processed, total)
			}
			return
		}

		percent := int(Percent(processed, total))
		if percent != lastPercent || processed >= total {
			lastPercent = percent
			fn(processed, total)
		}
	}
}

// Log writes progress as structured log lines, at most one per interval
// plus the final update
func Log(logger *slog.Logger, interval time.Duration) Func {
	if logger == nil {
		logger = slog.Default()
	}

	var last time.Time
	return func(processed, total int) {
		now := time.Now()
		final := total > 0 && processed >= total
		if !final && now.Sub(last) < interval {
			return
		}
		last = now

		attrs := []any{slog.Int("processed", processed)}
		if total > 0 {
			attrs = append(attrs,
				slog.Int("total", total),
				slog.String("percent", formatPercent(Percent(processed, total))))
		}
		logger.Info("ingest progress", attrs...)
	}
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}
