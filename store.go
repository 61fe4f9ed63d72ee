package hypersparse

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// RelationInfo is the persisted declaration of a relation.
type RelationInfo struct {
	ID         RelationID `json:"id" msgpack:"id"`
	Name       string     `json:"name" msgpack:"name"`
	WeightType string     `json:"weight_type" msgpack:"weight_type"`
	Kind       Kind       `json:"kind" msgpack:"kind"`
}

// Store persists the catalog: node names and properties, relation
// declarations and the edge id sequence. Matrices are not stored here.
//
// Implementations must make ResolveNode atomic: concurrent calls for the
// same new name return the same id and allocate it exactly once.
type Store interface {
	// ResolveNode returns the id for name, allocating the next id when the
	// name is new. created reports whether this call allocated it.
	ResolveNode(ctx context.Context, name string) (id NodeID, created bool, err error)
	// LookupNode returns the id for name without allocating.
	LookupNode(ctx context.Context, name string) (NodeID, bool, error)
	// NodeName returns the name of an allocated id or ErrNotFound.
	NodeName(ctx context.Context, id NodeID) (string, error)
	// SetNodeProps replaces the properties of an allocated id.
	SetNodeProps(ctx context.Context, id NodeID, props Props) error
	// NodeProps returns the properties of an allocated id (empty if unset).
	NodeProps(ctx context.Context, id NodeID) (Props, error)
	// NodeCount returns the number of allocated node ids.
	NodeCount(ctx context.Context) (uint64, error)

	// CreateRelation persists a declaration and assigns its id. A name that
	// is already declared returns ErrDuplicateRelation.
	CreateRelation(ctx context.Context, info RelationInfo) (RelationID, error)
	// Relations returns every declaration in ascending id order.
	Relations(ctx context.Context) ([]RelationInfo, error)

	// NextEdgeID allocates the next incidence edge id.
	NextEdgeID(ctx context.Context) (EdgeID, error)

	Close() error
}

// memStore is a process-local Store.
type memStore struct {
	mu        sync.RWMutex
	names     []string // index = NodeID-1
	ids       map[string]NodeID
	props     map[NodeID]Props
	relations []RelationInfo
	relByName map[string]RelationID
	nextEdge  EdgeID
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() Store {
	return &memStore{
		ids:       make(map[string]NodeID),
		props:     make(map[NodeID]Props),
		relByName: make(map[string]RelationID),
	}
}

func (s *memStore) ResolveNode(_ context.Context, name string) (NodeID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[name]; ok {
		return id, false, nil
	}
	s.names = append(s.names, name)
	id := NodeID(len(s.names))
	s.ids[name] = id
	return id, true, nil
}

func (s *memStore) LookupNode(_ context.Context, name string) (NodeID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[name]
	return id, ok, nil
}

func (s *memStore) NodeName(_ context.Context, id NodeID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == 0 || uint64(id) > uint64(len(s.names)) {
		return "", fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	return s.names[id-1], nil
}

func (s *memStore) SetNodeProps(_ context.Context, id NodeID, props Props) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 || uint64(id) > uint64(len(s.names)) {
		return fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	s.props[id] = maps.Clone(props)
	return nil
}

func (s *memStore) NodeProps(_ context.Context, id NodeID) (Props, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == 0 || uint64(id) > uint64(len(s.names)) {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	p := maps.Clone(s.props[id])
	if p == nil {
		p = Props{}
	}
	return p, nil
}

func (s *memStore) NodeCount(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.names)), nil
}

func (s *memStore) CreateRelation(_ context.Context, info RelationInfo) (RelationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relByName[info.Name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateRelation, info.Name)
	}
	info.ID = RelationID(len(s.relations) + 1)
	s.relations = append(s.relations, info)
	s.relByName[info.Name] = info.ID
	return info.ID, nil
}

func (s *memStore) Relations(context.Context) ([]RelationInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RelationInfo(nil), s.relations...), nil
}

func (s *memStore) NextEdgeID(context.Context) (EdgeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEdge++
	return s.nextEdge, nil
}

func (s *memStore) Close() error { return nil }
