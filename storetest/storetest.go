// Package storetest holds the conformance suite every hypersparse.Store
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrYoda/hypersparse"
)

// Run runs the suite. open must return an empty store; Run closes it.
func Run(t *testing.T, open func(t *testing.T) hypersparse.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s hypersparse.Store)
	}{
		{"ResolveNode", testResolveNode},
		{"ConcurrentResolve", testConcurrentResolve},
		{"NodeProps", testNodeProps},
		{"Relations", testRelations},
		{"EdgeIDs", testEdgeIDs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func testResolveNode(t *testing.T, s hypersparse.Store) {
	ctx := context.Background()

	a, created, err := s.ResolveNode(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, a)

	again, created, err := s.ResolveNode(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a, again)

	b, _, err := s.ResolveNode(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	id, ok, err := s.LookupNode(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, b, id)

	_, ok, err = s.LookupNode(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	name, err := s.NodeName(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	_, err = s.NodeName(ctx, 12345)
	assert.ErrorIs(t, err, hypersparse.ErrNotFound)

	n, err := s.NodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func testConcurrentResolve(t *testing.T, s hypersparse.Store) {
	ctx := context.Background()
	const (
		workers = 8
		names   = 10
	)

	got := make([][]hypersparse.NodeID, workers)
	var wg sync.WaitGroup
	for w := range workers {
		got[w] = make([]hypersparse.NodeID, names)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range names {
				id, _, err := s.ResolveNode(ctx, fmt.Sprintf("n%d", (i+w)%names))
				if err != nil {
					t.Errorf("ResolveNode: %v", err)
					return
				}
				got[w][(i+w)%names] = id
			}
		}()
	}
	wg.Wait()

	seen := make(map[hypersparse.NodeID]int)
	for i := range names {
		for w := 1; w < workers; w++ {
			require.Equal(t, got[0][i], got[w][i], "name n%d resolved to different ids", i)
		}
		seen[got[0][i]]++
	}
	assert.Len(t, seen, names)

	n, err := s.NodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(names), n)
}

func testNodeProps(t *testing.T, s hypersparse.Store) {
	ctx := context.Background()
	id, _, err := s.ResolveNode(ctx, "alice")
	require.NoError(t, err)

	props, err := s.NodeProps(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, props)

	require.NoError(t, s.SetNodeProps(ctx, id, hypersparse.Props{"city": "Istanbul"}))
	props, err = s.NodeProps(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Istanbul", props["city"])

	require.NoError(t, s.SetNodeProps(ctx, id, hypersparse.Props{"team": "core"}))
	props, err = s.NodeProps(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, props, "city")
	assert.Equal(t, "core", props["team"])

	_, err = s.NodeProps(ctx, 999)
	assert.ErrorIs(t, err, hypersparse.ErrNotFound)
	assert.ErrorIs(t, s.SetNodeProps(ctx, 999, hypersparse.Props{}), hypersparse.ErrNotFound)
}

func testRelations(t *testing.T, s hypersparse.Store) {
	ctx := context.Background()

	friend, err := s.CreateRelation(ctx, hypersparse.RelationInfo{Name: "friend", WeightType: "BOOL", Kind: hypersparse.Adjacency})
	require.NoError(t, err)
	dist, err := s.CreateRelation(ctx, hypersparse.RelationInfo{Name: "distance", WeightType: "INT64", Kind: hypersparse.Incidence})
	require.NoError(t, err)
	assert.Less(t, friend, dist)

	_, err = s.CreateRelation(ctx, hypersparse.RelationInfo{Name: "friend", WeightType: "FP64"})
	assert.ErrorIs(t, err, hypersparse.ErrDuplicateRelation)

	rels, err := s.Relations(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, hypersparse.RelationInfo{ID: friend, Name: "friend", WeightType: "BOOL", Kind: hypersparse.Adjacency}, rels[0])
	assert.Equal(t, hypersparse.RelationInfo{ID: dist, Name: "distance", WeightType: "INT64", Kind: hypersparse.Incidence}, rels[1])
}

func testEdgeIDs(t *testing.T, s hypersparse.Store) {
	ctx := context.Background()
	var prev hypersparse.EdgeID
	for range 5 {
		id, err := s.NextEdgeID(ctx)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}
