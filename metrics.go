package hypersparse

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Metrics holds operational counters for a graph. All fields are atomic.
// Prometheus text exposition is written by hand.
type Metrics struct {
	// Write counters
	InsertsTotal   atomic.Uint64 // edge specs applied (adjacency writes + incidence edges)
	EdgesCreated   atomic.Uint64 // incidence edge ids allocated
	NodesCreated   atomic.Uint64 // node names allocated
	InsertErrors   atomic.Uint64
	WALAppends     atomic.Uint64
	ReplayedEdges  atomic.Uint64 // WAL entries applied at open
	RelationsTotal atomic.Uint64

	// Query counters
	QueriesTotal     atomic.Uint64
	QueryErrorTotal  atomic.Uint64
	SlowQueries      atomic.Uint64
	ProjectionsTotal atomic.Uint64

	// Query duration tracking
	QueryDurationSum atomic.Int64 // cumulative microseconds
	QueryDurationMax atomic.Int64 // max observed microseconds

	// Name cache counters
	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64

	g *Graph
}

func newMetrics(g *Graph) *Metrics {
	return &Metrics{g: g}
}

// recordQueryDuration records a query's wall-clock duration.
func (m *Metrics) recordQueryDuration(d time.Duration) {
	us := d.Microseconds()
	m.QueryDurationSum.Add(us)
	for {
		cur := m.QueryDurationMax.Load()
		if us <= cur {
			break
		}
		if m.QueryDurationMax.CompareAndSwap(cur, us) {
			break
		}
	}
}

// Snapshot returns a point-in-time copy of all metrics as a map.
func (m *Metrics) Snapshot() map[string]any {
	snap := map[string]any{
		"inserts_total":         m.InsertsTotal.Load(),
		"edges_created_total":   m.EdgesCreated.Load(),
		"nodes_created_total":   m.NodesCreated.Load(),
		"insert_errors_total":   m.InsertErrors.Load(),
		"wal_appends_total":     m.WALAppends.Load(),
		"replayed_edges_total":  m.ReplayedEdges.Load(),
		"relations_total":       m.RelationsTotal.Load(),
		"queries_total":         m.QueriesTotal.Load(),
		"query_errors_total":    m.QueryErrorTotal.Load(),
		"slow_queries_total":    m.SlowQueries.Load(),
		"projections_total":     m.ProjectionsTotal.Load(),
		"query_duration_sum_us": m.QueryDurationSum.Load(),
		"query_duration_max_us": m.QueryDurationMax.Load(),
		"cache_hits_total":      m.CacheHits.Load(),
		"cache_misses_total":    m.CacheMisses.Load(),
	}
	if m.g != nil && !m.g.isClosed() {
		snap["size"] = m.g.Size()
		if n, err := m.g.catalog.NodeCount(context.Background()); err == nil {
			snap["node_count"] = n
		}
		snap["name_cache_entries"] = m.g.catalog.cache.byName.Len()
	}
	return snap
}

// WritePrometheus writes all metrics in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	pCounter(w, "hypersparse_inserts_total", "Total edge specs applied", m.InsertsTotal.Load())
	pCounter(w, "hypersparse_edges_created_total", "Total incidence edge ids allocated", m.EdgesCreated.Load())
	pCounter(w, "hypersparse_nodes_created_total", "Total node names allocated", m.NodesCreated.Load())
	pCounter(w, "hypersparse_insert_errors_total", "Total failed inserts", m.InsertErrors.Load())
	pCounter(w, "hypersparse_wal_appends_total", "Total WAL entries appended", m.WALAppends.Load())
	pCounter(w, "hypersparse_replayed_edges_total", "Total WAL entries replayed at open", m.ReplayedEdges.Load())
	pCounter(w, "hypersparse_queries_total", "Total number of queries", m.QueriesTotal.Load())
	pCounter(w, "hypersparse_query_errors_total", "Total number of query errors", m.QueryErrorTotal.Load())
	pCounter(w, "hypersparse_slow_queries_total", "Total number of slow queries", m.SlowQueries.Load())
	pCounter(w, "hypersparse_projections_total", "Total number of projections", m.ProjectionsTotal.Load())
	pCounter(w, "hypersparse_query_duration_microseconds_sum", "Cumulative query duration in microseconds", uint64(m.QueryDurationSum.Load()))
	pCounter(w, "hypersparse_name_cache_hits_total", "Total name cache hits", m.CacheHits.Load())
	pCounter(w, "hypersparse_name_cache_misses_total", "Total name cache misses", m.CacheMisses.Load())

	if m.g != nil && !m.g.isClosed() {
		pGauge(w, "hypersparse_relations", "Declared relations", float64(m.RelationsTotal.Load()))
		pGauge(w, "hypersparse_size", "Stored adjacency coordinates plus incidence edges", float64(m.g.Size()))
		if n, err := m.g.catalog.NodeCount(context.Background()); err == nil {
			pGauge(w, "hypersparse_nodes_current", "Allocated node ids", float64(n))
		}
	}
	pGauge(w, "hypersparse_query_duration_microseconds_max", "Maximum observed query duration in microseconds", float64(m.QueryDurationMax.Load()))
}

func pCounter(w io.Writer, name, help string, val uint64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, val)
}

func pGauge(w io.Writer, name, help string, val float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, val)
}
