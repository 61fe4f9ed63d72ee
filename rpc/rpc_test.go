package rpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/mstrYoda/hypersparse"
)

func testClient(t *testing.T) (*Client, *hypersparse.Graph) {
	t.Helper()
	g, err := hypersparse.OpenInMemory(hypersparse.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	lis := bufconn.Listen(1 << 20)
	gs := NewServer(g).GRPCServer()
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, g
}

func seedDistance(t *testing.T, c *Client) {
	t.Helper()
	ctx := context.Background()
	_, err := c.AddRelation(ctx, &AddRelationRequest{Name: "distance", WeightType: "int64", Incidence: true})
	require.NoError(t, err)
	n, err := c.Insert(ctx,
		[]any{"distance", "chicago", "seattle", 422},
		[]any{"distance", "seattle", "portland", 42},
	)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRelations(t *testing.T) {
	c, g := testClient(t)
	seedDistance(t, c)
	ctx := context.Background()

	rels, err := c.Relations(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, RelationInfo{Name: "distance", Kind: "Incidence", WeightType: "INT64", Len: 2}, rels[0])
	assert.Equal(t, 2, g.Size())

	_, err = c.AddRelation(ctx, &AddRelationRequest{Name: "distance"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = c.AddRelation(ctx, &AddRelationRequest{Name: "x", WeightType: "decimal"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestInsertErrors(t *testing.T) {
	c, _ := testClient(t)
	seedDistance(t, c)
	ctx := context.Background()

	_, err := c.Insert(ctx, []any{"enemy", "a", "b"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Insert(ctx, []any{"distance", "a", "b", "far"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Insert(ctx)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestQueryStream(t *testing.T) {
	c, _ := testClient(t)
	seedDistance(t, c)
	ctx := context.Background()

	it, err := c.Query(ctx, hypersparse.Pattern{Source: "seattle"})
	require.NoError(t, err)
	edges, err := hypersparse.Collect(it)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "distance(seattle, portland, 42)", edges[0].String())
	assert.Equal(t, int64(42), edges[0].Weight())

	it, err = c.Query(ctx, hypersparse.Pattern{})
	require.NoError(t, err)
	edges, err = hypersparse.Collect(it)
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	it, err = c.Query(ctx, hypersparse.Pattern{Relation: "nope"})
	require.NoError(t, err)
	_, err = hypersparse.Collect(it)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHyperedgeOverRPC(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()
	_, err := c.AddRelation(ctx, &AddRelationRequest{Name: "meeting", Incidence: true})
	require.NoError(t, err)
	_, err = c.Insert(ctx, []any{"meeting", []any{"alice", "bob"}, []any{"carol"}})
	require.NoError(t, err)

	it, err := c.Query(ctx, hypersparse.Pattern{Destination: "carol"})
	require.NoError(t, err)
	edges, err := hypersparse.Collect(it)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, edges[0].Sources)
	assert.Equal(t, []string{"carol"}, edges[0].Destinations)
	assert.True(t, edges[0].IsHyper())
}

func TestProject(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()
	_, err := c.AddRelation(ctx, &AddRelationRequest{Name: "link", WeightType: "INT64", Incidence: true})
	require.NoError(t, err)
	_, err = c.Insert(ctx, []any{"link", "p", "q", 1}, []any{"link", "p", "q", 1})
	require.NoError(t, err)

	proj, err := c.Project(ctx, "link", "")
	require.NoError(t, err)
	assert.Equal(t, "plus_times", proj.Combine)
	require.Len(t, proj.Cells, 1)
	cell := proj.Cells[0]
	assert.Equal(t, "p", cell.Source)
	assert.Equal(t, "q", cell.Destination)
	assert.Equal(t, int64(2), cell.Weight)
	assert.Len(t, cell.EdgeIDs, 2)

	_, err = c.Project(ctx, "link", "bogus")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = c.Project(ctx, "nope", "")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestStats(t *testing.T) {
	c, _ := testClient(t)
	seedDistance(t, c)

	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Size)
	assert.Equal(t, uint64(3), st.NodeCount)
	require.Len(t, st.Relations, 1)
	assert.Equal(t, "distance", st.Relations[0].Name)
}

func TestCodecRoundTripsEdge(t *testing.T) {
	e := hypersparse.Edge{
		Relation:     "r",
		ID:           7,
		Sources:      []string{"a"},
		Destinations: []string{"b", "c"},
		Weights:      []any{int64(1), 2.5},
	}
	data, err := codec{}.Marshal(&e)
	require.NoError(t, err)

	var got hypersparse.Edge
	require.NoError(t, codec{}.Unmarshal(data, &got))
	assert.Equal(t, e, got)
}
