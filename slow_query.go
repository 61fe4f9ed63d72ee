package hypersparse

import (
	"sync"
	"time"
)

// SlowQueryEntry records a single slow query or projection.
type SlowQueryEntry struct {
	Query      string        `json:"query"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	Rows       int           `json:"rows"`
	Timestamp  time.Time     `json:"timestamp"`
}

// slowQueryLog is a bounded ring buffer of recent slow queries.
type slowQueryLog struct {
	mu      sync.Mutex
	entries []SlowQueryEntry
	pos     int
	cap     int
}

func newSlowQueryLog(capacity int) *slowQueryLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &slowQueryLog{
		entries: make([]SlowQueryEntry, 0, capacity),
		cap:     capacity,
	}
}

func (l *slowQueryLog) add(e SlowQueryEntry) {
	l.mu.Lock()
	if len(l.entries) < l.cap {
		l.entries = append(l.entries, e)
	} else {
		l.entries[l.pos] = e
	}
	l.pos = (l.pos + 1) % l.cap
	l.mu.Unlock()
}

// Recent returns up to the last n slow queries, newest first.
func (l *slowQueryLog) Recent(n int) []SlowQueryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := len(l.entries)
	if n <= 0 || n > size {
		n = size
	}
	result := make([]SlowQueryEntry, n)
	for i := range n {
		idx := (l.pos - 1 - i + size) % size
		result[i] = l.entries[idx]
	}
	return result
}

// observeQuery records metrics for one query and logs it when it exceeded
// SlowQueryThreshold.
func (g *Graph) observeQuery(query string, duration time.Duration, rows int, err error) {
	g.metrics.recordQueryDuration(duration)
	if err != nil {
		g.metrics.QueryErrorTotal.Add(1)
	}

	threshold := g.opts.SlowQueryThreshold
	if threshold <= 0 || duration < threshold {
		return
	}
	g.metrics.SlowQueries.Add(1)
	g.slowLog.add(SlowQueryEntry{
		Query:      truncateQuery(query, 500),
		Duration:   duration,
		DurationMs: float64(duration.Microseconds()) / 1000.0,
		Rows:       rows,
		Timestamp:  time.Now(),
	})
	g.log.Warn("slow query detected",
		"query", truncateQuery(query, 200),
		"duration", duration.String(),
		"rows", rows,
		"threshold", threshold.String(),
	)
}

// SlowQueries returns the most recent slow queries (up to n), newest first.
func (g *Graph) SlowQueries(n int) []SlowQueryEntry {
	return g.slowLog.Recent(n)
}

func truncateQuery(q string, maxLen int) string {
	if len(q) <= maxLen {
		return q
	}
	return q[:maxLen] + "..."
}
