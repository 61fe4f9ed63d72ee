// Package rpc exposes a hypersparse.Graph over gRPC.
//
// The service is described by hand and carried with a msgpack codec, so no
// generated protobuf code is involved:
//
//	hypersparse.GraphService/AddRelation   unary
//	hypersparse.GraphService/Relations     unary
//	hypersparse.GraphService/Insert        unary
//	hypersparse.GraphService/Query         server stream of edges
//	hypersparse.GraphService/Project       unary
//	hypersparse.GraphService/Stats         unary
package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/mstrYoda/hypersparse"
)

const serviceName = "hypersparse.GraphService"

// AddRelationRequest declares a relation. An empty WeightType means BOOL.
type AddRelationRequest struct {
	Name       string `json:"name"`
	WeightType string `json:"weight_type,omitempty"`
	Incidence  bool   `json:"incidence,omitempty"`
}

// RelationInfo describes a declared relation.
type RelationInfo struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	WeightType string `json:"weight_type"`
	Len        int    `json:"len"`
}

type RelationsRequest struct{}

type RelationsReply struct {
	Relations []RelationInfo `json:"relations"`
}

// InsertRequest carries graph-scoped tuples (relation, src, dst[, weight]).
type InsertRequest struct {
	Tuples [][]any `json:"tuples"`
}

type InsertReply struct {
	Inserted int `json:"inserted"`
	Size     int `json:"size"`
}

// QueryRequest mirrors hypersparse.Pattern.
type QueryRequest struct {
	Source      string `json:"source,omitempty"`
	Relation    string `json:"relation,omitempty"`
	Destination string `json:"destination,omitempty"`
}

func (r *QueryRequest) pattern() hypersparse.Pattern {
	return hypersparse.Pattern{Source: r.Source, Relation: r.Relation, Destination: r.Destination}
}

type ProjectRequest struct {
	Relation string `json:"relation"`
	Combine  string `json:"combine,omitempty"`
}

type ProjectReply struct {
	Relation string                      `json:"relation"`
	Combine  string                      `json:"combine"`
	Cells    []hypersparse.ProjectedEdge `json:"cells"`
}

type StatsRequest struct{}

// GraphServer is the server side of GraphService.
type GraphServer interface {
	AddRelation(context.Context, *AddRelationRequest) (*RelationInfo, error)
	Relations(context.Context, *RelationsRequest) (*RelationsReply, error)
	Insert(context.Context, *InsertRequest) (*InsertReply, error)
	Query(*QueryRequest, grpc.ServerStream) error
	Project(context.Context, *ProjectRequest) (*ProjectReply, error)
	Stats(context.Context, *StatsRequest) (*hypersparse.GraphStats, error)
}

// RegisterGraphServer registers srv with s.
func RegisterGraphServer(s grpc.ServiceRegistrar, srv GraphServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(GraphServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GraphServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(GraphServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func queryHandler(srv any, stream grpc.ServerStream) error {
	in := new(QueryRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GraphServer).Query(in, stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*GraphServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("AddRelation", GraphServer.AddRelation),
		unaryHandler("Relations", GraphServer.Relations),
		unaryHandler("Insert", GraphServer.Insert),
		unaryHandler("Project", GraphServer.Project),
		unaryHandler("Stats", GraphServer.Stats),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Query",
			Handler:       queryHandler,
			ServerStreams: true,
		},
	},
	Metadata: "hypersparse/rpc",
}
