package hypersparse

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Graph is a set of named relations over one shared node catalog.
//
// Concurrency model:
//   - Every method is safe for concurrent use.
//   - Writers of one relation serialize on that relation's lock; readers run
//     in parallel with each other.
//   - Name allocation is atomic in the store, so concurrent inserts that
//     mention the same new name agree on its id.
type Graph struct {
	opts    Options
	dir     string
	store   Store
	catalog *Catalog
	wal     *WAL // nil for in-memory graphs
	pool    *workerPool
	log     *slog.Logger

	mu          sync.RWMutex // guards relations, byID, order, weightTypes
	relations   map[string]Relation
	byID        map[RelationID]Relation
	order       []Relation
	weightTypes []WeightType

	closeMu  sync.Mutex
	closed   atomic.Bool
	metrics  *Metrics
	slowLog  *slowQueryLog
	governor *queryGovernor
}

// Open creates or opens a persistent graph in dir. Unless opts.Store is
// set, the catalog lives in dir/catalog.db. Matrices are rebuilt from the
// WAL in dir/wal.
func Open(dir string, opts Options) (*Graph, error) {
	g := newGraph(dir, opts)

	store := opts.Store
	if store == nil {
		bs, err := openBoltStore(filepath.Join(dir, "catalog.db"), g.opts)
		if err != nil {
			return nil, err
		}
		store = bs
	}
	g.attach(store)

	var wal *WAL
	var err error
	if g.opts.ReadOnly {
		wal, err = OpenWALReadOnly(dir, g.log)
	} else {
		wal, err = OpenWAL(dir, g.opts.WALNoSync, g.log)
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("hypersparse: failed to open WAL: %w", err)
	}
	g.wal = wal

	if err := g.loadRelations(context.Background()); err != nil {
		g.abort()
		return nil, err
	}
	if err := g.replayWAL(); err != nil {
		g.abort()
		return nil, err
	}

	g.pool = newWorkerPool(g.opts.WorkerPoolSize)
	g.log.Info("graph opened",
		"dir", dir,
		"relations", len(g.order),
		"size", g.Size(),
		"workers", g.opts.WorkerPoolSize,
	)
	return g, nil
}

// OpenInMemory creates a graph that lives only in this process. When
// opts.Store is set its relation declarations are loaded, but no matrix
// data survives a restart.
func OpenInMemory(opts Options) (*Graph, error) {
	g := newGraph("", opts)
	store := opts.Store
	if store == nil {
		store = NewMemStore()
	}
	g.attach(store)
	if err := g.loadRelations(context.Background()); err != nil {
		store.Close()
		return nil, err
	}
	g.pool = newWorkerPool(g.opts.WorkerPoolSize)
	return g, nil
}

func newGraph(dir string, opts Options) *Graph {
	if opts.WorkerPoolSize <= 0 {
		opts.WorkerPoolSize = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Graph{
		opts:        opts,
		dir:         dir,
		log:         logger,
		relations:   make(map[string]Relation),
		byID:        make(map[RelationID]Relation),
		weightTypes: append([]WeightType(nil), opts.WeightTypes...),
		slowLog:     newSlowQueryLog(100),
		governor: &queryGovernor{
			maxRows:        opts.MaxResultRows,
			defaultTimeout: opts.DefaultQueryTimeout,
		},
	}
	g.metrics = newMetrics(g)
	return g
}

func (g *Graph) attach(store Store) {
	g.store = store
	g.catalog = newCatalog(store, g.opts.NameCacheSize, g.metrics, g.log)
}

func (g *Graph) abort() {
	if g.wal != nil {
		_ = g.wal.Close()
	}
	_ = g.store.Close()
}

// loadRelations rebuilds the (empty) relations declared in the store.
func (g *Graph) loadRelations(ctx context.Context) error {
	infos, err := g.store.Relations(ctx)
	if err != nil {
		return fmt.Errorf("hypersparse: load relations: %w", err)
	}
	for _, info := range infos {
		wt, ok := lookupWeightType(info.WeightType, g.weightTypes)
		if !ok {
			return fmt.Errorf("%w: relation %s uses unregistered weight type %q", ErrTypeMismatch, info.Name, info.WeightType)
		}
		g.register(info, wt)
	}
	return nil
}

// register must be called with g.mu held or before g is shared.
func (g *Graph) register(info RelationInfo, wt WeightType) Relation {
	r := newRelation(&relationBase{
		info:     info,
		wt:       wt,
		catalog:  g.catalog,
		wal:      g.wal,
		metrics:  g.metrics,
		log:      g.log.With("relation", info.Name),
		closed:   &g.closed,
		readOnly: g.opts.ReadOnly,
	})
	g.relations[info.Name] = r
	g.byID[info.ID] = r
	g.order = append(g.order, r)
	g.metrics.RelationsTotal.Add(1)
	return r
}

// AddRelation declares a relation. The kind and weight type are fixed for
// the relation's life.
func (g *Graph) AddRelation(ctx context.Context, name string, opts RelationOptions) (Relation, error) {
	if err := g.writeGuard(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty relation name", ErrMalformedEdgeSpec)
	}
	wt := opts.WeightType
	if wt.IsZero() {
		wt = Bool
	}
	kind := Adjacency
	if opts.Incidence {
		kind = Incidence
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.relations[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRelation, name)
	}
	if wt.kind == WeightUser {
		if _, ok := lookupWeightType(wt.name, g.weightTypes); !ok {
			g.weightTypes = append(g.weightTypes, wt)
		}
	}

	info := RelationInfo{Name: name, WeightType: wt.name, Kind: kind}
	id, err := g.store.CreateRelation(ctx, info)
	if err != nil {
		return nil, err
	}
	info.ID = id

	r := g.register(info, wt)
	g.log.Info("relation declared", "relation", name, "kind", kind, "weight_type", wt.name)
	return r, nil
}

// WeightType resolves a weight type name ("BOOL", "INT64", "FP64", "FC32"
// or a registered user type), ignoring case for the built-ins.
func (g *Graph) WeightType(name string) (WeightType, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if wt, ok := lookupWeightType(name, g.weightTypes); ok {
		return wt, true
	}
	return lookupWeightType(strings.ToUpper(name), nil)
}

// Relation returns the relation declared as name.
func (g *Graph) Relation(name string) (Relation, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.relations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelation, name)
	}
	return r, nil
}

// Relations returns every relation in declaration order.
func (g *Graph) Relations() []Relation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Relation(nil), g.order...)
}

// Catalog returns the graph's node catalog.
func (g *Graph) Catalog() *Catalog { return g.catalog }

// CreateNode allocates name (if new) and replaces its properties.
func (g *Graph) CreateNode(ctx context.Context, name string, props Props) (NodeID, error) {
	if err := g.writeGuard(); err != nil {
		return 0, err
	}
	return g.catalog.CreateNode(ctx, name, props)
}

// NodeProps returns the properties of an existing node.
func (g *Graph) NodeProps(ctx context.Context, name string) (Props, error) {
	id, err := g.existingNode(ctx, name)
	if err != nil {
		return nil, err
	}
	return g.catalog.GetProps(ctx, id)
}

// SetNodeProps replaces the properties of an existing node.
func (g *Graph) SetNodeProps(ctx context.Context, name string, props Props) error {
	if err := g.writeGuard(); err != nil {
		return err
	}
	id, err := g.existingNode(ctx, name)
	if err != nil {
		return err
	}
	return g.catalog.SetProps(ctx, id, props)
}

func (g *Graph) existingNode(ctx context.Context, name string) (NodeID, error) {
	if g.isClosed() {
		return 0, ErrClosed
	}
	id, ok, err := g.catalog.Lookup(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: node %q", ErrNotFound, name)
	}
	return id, nil
}

// Insert dispatches each spec to its relation by name. Every spec is
// checked (relation name, shape, weight type) before the first write;
// after that specs are applied in order and the first failure stops the
// sequence.
func (g *Graph) Insert(ctx context.Context, specs ...EdgeSpec) error {
	_, err := g.insert(ctx, specs)
	return err
}

// insert returns the number of specs applied.
func (g *Graph) insert(ctx context.Context, specs []EdgeSpec) (int, error) {
	if err := g.writeGuard(); err != nil {
		return 0, err
	}
	targets := make([]Relation, len(specs))
	for i, spec := range specs {
		r, err := g.target(spec)
		if err == nil {
			err = r.check(spec)
		}
		if err != nil {
			return 0, fmt.Errorf("edge %d: %w", i, err)
		}
		targets[i] = r
	}
	for i, spec := range specs {
		if err := targets[i].Insert(ctx, spec); err != nil {
			return i, err
		}
	}
	return len(specs), nil
}

// InsertMany applies specs lazily in order, stopping at the first error.
// It returns the number of specs applied.
func (g *Graph) InsertMany(ctx context.Context, specs iter.Seq[EdgeSpec]) (int, error) {
	if err := g.writeGuard(); err != nil {
		return 0, err
	}
	n := 0
	for spec := range specs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		r, err := g.target(spec)
		if err != nil {
			return n, err
		}
		if err := r.Insert(ctx, spec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// InsertTuples parses graph-scoped (relation, src, dst[, weight]) tuples
// and inserts them. Malformed tuples, unknown relations and weights of the
// wrong type are reported before any write. It returns the number of
// edges applied, which is short of len(tuples) only when a write failed.
func (g *Graph) InsertTuples(ctx context.Context, tuples ...[]any) (int, error) {
	specs := make([]EdgeSpec, 0, len(tuples))
	for i, t := range tuples {
		spec, err := ParseTuple(t)
		if err != nil {
			return 0, fmt.Errorf("hypersparse: tuple %d: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return g.insert(ctx, specs)
}

func (g *Graph) target(spec EdgeSpec) (Relation, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil edge spec", ErrMalformedEdgeSpec)
	}
	name := spec.RelationName()
	if name == "" {
		return nil, fmt.Errorf("%w: edge spec names no relation", ErrMalformedEdgeSpec)
	}
	return g.Relation(name)
}

// Project projects the named relation under combine, recovering panics from
// user-supplied combine operators.
func (g *Graph) Project(ctx context.Context, relation string, combine Combine) (*Projection, error) {
	if g.isClosed() {
		return nil, ErrClosed
	}
	r, err := g.Relation(relation)
	if err != nil {
		return nil, err
	}
	p, err := safeExecuteResult(func() (*Projection, error) {
		return r.Project(ctx, combine)
	})
	if errors.Is(err, ErrQueryPanic) {
		g.log.Error("projection panicked", "relation", relation, "combine", combine.Name())
	}
	return p, err
}

// Size is the number of stored adjacency coordinates plus incidence edges
// across all relations.
func (g *Graph) Size() int {
	n := 0
	for _, r := range g.Relations() {
		n += r.Len()
	}
	return n
}

// Stats returns graph statistics.
func (g *Graph) Stats(ctx context.Context) (*GraphStats, error) {
	if g.isClosed() {
		return nil, ErrClosed
	}
	nodes, err := g.catalog.NodeCount(ctx)
	if err != nil {
		return nil, err
	}
	stats := &GraphStats{NodeCount: nodes}
	for _, r := range g.Relations() {
		n := r.Len()
		stats.Size += n
		stats.Relations = append(stats.Relations, RelationStats{
			Name:       r.Name(),
			Kind:       r.Kind().String(),
			WeightType: r.WeightType().Name(),
			Len:        n,
			NVals:      r.nvals(),
		})
	}
	if g.wal != nil {
		stats.WALLastLSN = g.wal.LastLSN()
	}
	if bs, ok := g.store.(*boltStore); ok {
		if size, err := bs.fileSize(); err == nil {
			stats.DiskSizeBytes = size
		}
	}
	return stats, nil
}

// String renders <Graph [friend, coworker]: 4>.
func (g *Graph) String() string {
	rels := g.Relations()
	names := make([]string, len(rels))
	for i, r := range rels {
		names[i] = r.Name()
	}
	return fmt.Sprintf("<Graph [%s]: %d>", strings.Join(names, ", "), g.Size())
}

// Metrics returns the operational metrics collector.
func (g *Graph) Metrics() *Metrics { return g.metrics }

func (g *Graph) isClosed() bool { return g.closed.Load() }

// writeGuard rejects writes to a closed or read-only graph.
func (g *Graph) writeGuard() error {
	if g.isClosed() {
		return ErrClosed
	}
	if g.opts.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Close flushes the WAL and closes the store. It is safe to call twice.
func (g *Graph) Close() error {
	g.closeMu.Lock()
	defer g.closeMu.Unlock()

	if g.closed.Load() {
		return nil
	}
	g.closed.Store(true)

	if g.pool != nil {
		g.pool.stop()
	}

	var firstErr error
	if g.wal != nil {
		if err := g.wal.Close(); err != nil {
			g.log.Error("WAL close error", "error", err)
			firstErr = err
		}
	}
	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		g.log.Error("graph closed with error", "error", firstErr)
	} else {
		g.log.Info("graph closed")
	}
	return firstErr
}
