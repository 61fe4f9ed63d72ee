package hypersparse

import (
	"context"
	"fmt"
	"log/slog"
)

// Catalog maps stable node names to dense NodeIDs and back. One Catalog is
// shared by every relation of a Graph, so a name has the same coordinate in
// every matrix.
//
// Name/id pairs never change once allocated, so cached entries never go
// stale.
type Catalog struct {
	store   Store
	cache   *nameCache
	metrics *Metrics
	log     *slog.Logger
}

func newCatalog(store Store, cacheSize int, metrics *Metrics, log *slog.Logger) *Catalog {
	return &Catalog{
		store:   store,
		cache:   newNameCache(cacheSize),
		metrics: metrics,
		log:     log,
	}
}

// ResolveOrCreate returns the id of name, allocating the next id on first
// sight. Concurrent calls for the same new name agree on one id.
func (c *Catalog) ResolveOrCreate(ctx context.Context, name string) (NodeID, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty node name", ErrMalformedEdgeSpec)
	}
	if id, ok := c.cache.byName.Get(name); ok {
		c.metrics.CacheHits.Add(1)
		return id, nil
	}
	c.metrics.CacheMisses.Add(1)

	id, created, err := c.store.ResolveNode(ctx, name)
	if err != nil {
		return 0, err
	}
	if created {
		c.metrics.NodesCreated.Add(1)
		c.log.Debug("node allocated", "name", name, "id", id)
	}
	c.cache.put(name, id)
	return id, nil
}

// Lookup returns the id of name without allocating one.
func (c *Catalog) Lookup(ctx context.Context, name string) (NodeID, bool, error) {
	if id, ok := c.cache.byName.Get(name); ok {
		c.metrics.CacheHits.Add(1)
		return id, true, nil
	}
	c.metrics.CacheMisses.Add(1)

	id, ok, err := c.store.LookupNode(ctx, name)
	if err != nil || !ok {
		return 0, false, err
	}
	c.cache.put(name, id)
	return id, true, nil
}

// NameOf returns the name of an allocated id, or ErrNotFound.
func (c *Catalog) NameOf(ctx context.Context, id NodeID) (string, error) {
	if name, ok := c.cache.byID.Get(id); ok {
		c.metrics.CacheHits.Add(1)
		return name, nil
	}
	c.metrics.CacheMisses.Add(1)

	name, err := c.store.NodeName(ctx, id)
	if err != nil {
		return "", err
	}
	c.cache.put(name, id)
	return name, nil
}

// namesOf decodes a list of ids in order.
func (c *Catalog) namesOf(ctx context.Context, ids []NodeID) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		name, err := c.NameOf(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i] = name
	}
	return out, nil
}

// SetProps replaces the properties of an allocated node.
func (c *Catalog) SetProps(ctx context.Context, id NodeID, props Props) error {
	return c.store.SetNodeProps(ctx, id, props)
}

// GetProps returns the properties of an allocated node; a node without
// properties yields an empty Props.
func (c *Catalog) GetProps(ctx context.Context, id NodeID) (Props, error) {
	return c.store.NodeProps(ctx, id)
}

// CreateNode resolves name and stores props on it. Existing properties are
// replaced.
func (c *Catalog) CreateNode(ctx context.Context, name string, props Props) (NodeID, error) {
	id, err := c.ResolveOrCreate(ctx, name)
	if err != nil {
		return 0, err
	}
	if props != nil {
		if err := c.SetProps(ctx, id, props); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// NodeCount returns the number of allocated ids.
func (c *Catalog) NodeCount(ctx context.Context) (uint64, error) {
	return c.store.NodeCount(ctx)
}

// NextEdgeID allocates a fresh incidence edge id.
func (c *Catalog) NextEdgeID(ctx context.Context) (EdgeID, error) {
	id, err := c.store.NextEdgeID(ctx)
	if err != nil {
		return 0, fmt.Errorf("hypersparse: allocate edge id: %w", err)
	}
	c.metrics.EdgesCreated.Add(1)
	return id, nil
}
