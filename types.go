package hypersparse

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// NodeID is the dense matrix coordinate a node name resolves to.
// Ids start at 1 and are never reused.
type NodeID uint64

// EdgeID identifies one incidence edge (a column of the S and D matrices).
// Edge ids come from a single graph-wide sequence starting at 1.
type EdgeID uint64

// RelationID identifies a declared relation.
type RelationID uint64

// Props holds arbitrary key-value properties attached to a node.
type Props map[string]any

// Kind selects how a relation encodes its edges.
type Kind uint8

const (
	// Adjacency stores one node x node matrix; at most one weight per (src, dst).
	Adjacency Kind = iota + 1
	// Incidence stores a pair of node x edge matrices sharing the edge axis.
	Incidence
)

func (k Kind) String() string {
	switch k {
	case Adjacency:
		return "Adjacency"
	case Incidence:
		return "Incidence"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "adjacency", "adj":
		return Adjacency, nil
	case "incidence", "inc":
		return Incidence, nil
	}
	return 0, fmt.Errorf("hypersparse: unknown relation kind %q", s)
}

// Options configures a Graph.
type Options struct {
	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ReadOnly opens the catalog and WAL without modifying them. Every
	// write returns ErrReadOnly.
	ReadOnly bool
	// NoSync disables fsync after each bbolt commit. A background goroutine
	// syncs periodically instead.
	NoSync bool
	// MmapSize is the initial bbolt mmap size in bytes.
	MmapSize int
	// WriteQueueSize bounds the number of writers waiting on bbolt's single
	// writer lock. Default: 64.
	WriteQueueSize int
	// WriteTimeout bounds how long a writer waits for a queue slot when the
	// caller's context has no deadline. 0 = wait forever.
	WriteTimeout time.Duration

	// WALNoSync disables the WAL group-commit fsync loop (tests only).
	WALNoSync bool

	// NameCacheSize is the capacity of the in-process name<->id cache.
	// 0 disables the cache.
	NameCacheSize int

	// WorkerPoolSize is the number of goroutines used to evaluate a graph
	// query across relations.
	WorkerPoolSize int
	// MaxResultRows caps the edges a single graph query may yield.
	// 0 = unlimited.
	MaxResultRows int
	// DefaultQueryTimeout applies when the caller's context has no deadline.
	DefaultQueryTimeout time.Duration
	// SlowQueryThreshold logs and records queries slower than this.
	// 0 disables slow query tracking.
	SlowQueryThreshold time.Duration

	// WeightTypes registers user-defined weight types so relations declared
	// with them can be reopened.
	WeightTypes []WeightType

	// Store overrides the metadata store. When nil, Open uses a bbolt file in
	// the graph directory and OpenInMemory uses a process-local store.
	Store Store
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		NoSync:             false,
		MmapSize:           64 * 1024 * 1024,
		WriteQueueSize:     64,
		NameCacheSize:      100_000,
		WorkerPoolSize:     8,
		MaxResultRows:      0,
		SlowQueryThreshold: 100 * time.Millisecond,
	}
}

// GraphStats holds graph statistics.
type GraphStats struct {
	NodeCount     uint64          `json:"node_count"`
	Size          int             `json:"size"`
	Relations     []RelationStats `json:"relations"`
	WALLastLSN    uint64          `json:"wal_last_lsn"`
	DiskSizeBytes int64           `json:"disk_size_bytes"`
}

// RelationStats summarizes one relation.
type RelationStats struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	WeightType string `json:"weight_type"`
	Len        int    `json:"len"`
	NVals      int    `json:"nvals"`
}
