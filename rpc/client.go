package rpc

import (
	"context"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mstrYoda/hypersparse"
)

// Client talks to a remote GraphService.
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// Dial connects to target with plaintext credentials and the msgpack codec.
// Extra options are applied after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(Name)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient wraps an existing connection. The connection must have been
// created with grpc.CallContentSubtype(Name) as a default call option.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the connection if Dial opened it.
func (c *Client) Close() error {
	if c.own {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out)
}

// AddRelation declares a relation on the remote graph.
func (c *Client) AddRelation(ctx context.Context, req *AddRelationRequest) (*RelationInfo, error) {
	out := new(RelationInfo)
	if err := c.invoke(ctx, "AddRelation", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Relations lists relations in declaration order.
func (c *Client) Relations(ctx context.Context) ([]RelationInfo, error) {
	out := new(RelationsReply)
	if err := c.invoke(ctx, "Relations", &RelationsRequest{}, out); err != nil {
		return nil, err
	}
	return out.Relations, nil
}

// Insert sends graph-scoped tuples and returns how many were inserted.
func (c *Client) Insert(ctx context.Context, tuples ...[]any) (int, error) {
	out := new(InsertReply)
	if err := c.invoke(ctx, "Insert", &InsertRequest{Tuples: tuples}, out); err != nil {
		return 0, err
	}
	return out.Inserted, nil
}

// Project returns the decoded cells of a relation's projection.
func (c *Client) Project(ctx context.Context, relation, combine string) (*ProjectReply, error) {
	out := new(ProjectReply)
	if err := c.invoke(ctx, "Project", &ProjectRequest{Relation: relation, Combine: combine}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the remote graph's statistics.
func (c *Client) Stats(ctx context.Context) (*hypersparse.GraphStats, error) {
	out := new(hypersparse.GraphStats)
	if err := c.invoke(ctx, "Stats", &StatsRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Query opens a result stream. Server-side errors such as an unknown
// relation surface through the iterator's Err after the first Next.
// Weights arrive in portable form.
func (c *Client) Query(ctx context.Context, p hypersparse.Pattern) (hypersparse.EdgeIterator, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], "/"+serviceName+"/Query")
	if err != nil {
		cancel()
		return nil, err
	}
	req := &QueryRequest{Source: p.Source, Relation: p.Relation, Destination: p.Destination}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, err
	}
	return &edgeStream{stream: stream, cancel: cancel}, nil
}

// edgeStream adapts a Query stream to hypersparse.EdgeIterator.
type edgeStream struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
	once   sync.Once
	cur    hypersparse.Edge
	err    error
	done   bool
}

func (it *edgeStream) Next() bool {
	if it.done {
		return false
	}
	var e hypersparse.Edge
	if err := it.stream.RecvMsg(&e); err != nil {
		if err != io.EOF {
			it.err = err
		}
		it.Close()
		return false
	}
	it.cur = e
	return true
}

func (it *edgeStream) Edge() hypersparse.Edge { return it.cur }

func (it *edgeStream) Err() error { return it.err }

func (it *edgeStream) Close() {
	it.done = true
	it.once.Do(it.cancel)
}
