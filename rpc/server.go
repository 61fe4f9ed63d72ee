package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mstrYoda/hypersparse"
)

// Server implements GraphServer on a local graph.
type Server struct {
	g   *hypersparse.Graph
	log *slog.Logger
}

var _ GraphServer = (*Server)(nil)

// ServerOption configures the rpc server.
type ServerOption func(*Server)

// WithLogger sets the logger for the rpc server.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer creates a GraphServer backed by g.
func NewServer(g *hypersparse.Graph, opts ...ServerOption) *Server {
	s := &Server{g: g, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GRPCServer returns a grpc.Server with s registered and request logging
// installed.
func (s *Server) GRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(s.logUnary),
		grpc.ChainStreamInterceptor(s.logStream),
	)
	gs := grpc.NewServer(opts...)
	RegisterGraphServer(gs, s)
	return gs
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug("rpc",
		"method", info.FullMethod,
		"duration", time.Since(start),
		"code", status.Code(err).String(),
	)
	return resp, err
}

func (s *Server) logStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.log.Debug("rpc stream",
		"method", info.FullMethod,
		"duration", time.Since(start),
		"code", status.Code(err).String(),
	)
	return err
}

// toStatus maps graph errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, hypersparse.ErrUnknownRelation), errors.Is(err, hypersparse.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, hypersparse.ErrDuplicateRelation):
		code = codes.AlreadyExists
	case errors.Is(err, hypersparse.ErrTypeMismatch), errors.Is(err, hypersparse.ErrMalformedEdgeSpec):
		code = codes.InvalidArgument
	case errors.Is(err, hypersparse.ErrResultTooLarge):
		code = codes.ResourceExhausted
	case errors.Is(err, hypersparse.ErrReadOnly):
		code = codes.FailedPrecondition
	case errors.Is(err, hypersparse.ErrClosed), errors.Is(err, hypersparse.ErrWriteQueueFull):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}

func relationInfo(r hypersparse.Relation) *RelationInfo {
	return &RelationInfo{
		Name:       r.Name(),
		Kind:       r.Kind().String(),
		WeightType: r.WeightType().Name(),
		Len:        r.Len(),
	}
}

func (s *Server) AddRelation(ctx context.Context, req *AddRelationRequest) (*RelationInfo, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	opts := hypersparse.RelationOptions{Incidence: req.Incidence}
	if req.WeightType != "" {
		wt, ok := s.g.WeightType(req.WeightType)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "unknown weight type %s", req.WeightType)
		}
		opts.WeightType = wt
	}
	rel, err := s.g.AddRelation(ctx, req.Name, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return relationInfo(rel), nil
}

func (s *Server) Relations(context.Context, *RelationsRequest) (*RelationsReply, error) {
	rels := s.g.Relations()
	out := &RelationsReply{Relations: make([]RelationInfo, 0, len(rels))}
	for _, r := range rels {
		out.Relations = append(out.Relations, *relationInfo(r))
	}
	return out, nil
}

func (s *Server) Insert(ctx context.Context, req *InsertRequest) (*InsertReply, error) {
	if len(req.Tuples) == 0 {
		return nil, status.Error(codes.InvalidArgument, "tuples are required")
	}
	n, err := s.g.InsertTuples(ctx, req.Tuples...)
	if err != nil {
		s.log.Debug("insert rejected", "tuples", len(req.Tuples), "applied", n, "error", err)
		return nil, toStatus(err)
	}
	return &InsertReply{Inserted: n, Size: s.g.Size()}, nil
}

// Query streams each matching edge as its own message.
func (s *Server) Query(req *QueryRequest, stream grpc.ServerStream) error {
	it, err := s.g.Query(stream.Context(), req.pattern())
	if err != nil {
		return toStatus(err)
	}
	defer it.Close()

	sent := 0
	for it.Next() {
		e := it.Edge().Portable()
		if err := stream.SendMsg(&e); err != nil {
			return err
		}
		sent++
	}
	if err := it.Err(); err != nil {
		s.log.Warn("query stream aborted", "query", req.pattern().String(), "sent", sent, "error", err)
		return toStatus(err)
	}
	return nil
}

func (s *Server) Project(ctx context.Context, req *ProjectRequest) (*ProjectReply, error) {
	combine, err := hypersparse.ParseCombine(req.Combine)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	proj, err := s.g.Project(ctx, req.Relation, combine)
	if err != nil {
		return nil, toStatus(err)
	}
	cells, err := proj.Edges(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	for i := range cells {
		cells[i].Weight = hypersparse.PortableWeight(cells[i].Weight)
	}
	return &ProjectReply{Relation: proj.Relation, Combine: proj.Combine, Cells: cells}, nil
}

func (s *Server) Stats(ctx context.Context, _ *StatsRequest) (*hypersparse.GraphStats, error) {
	st, err := s.g.Stats(ctx)
	return st, toStatus(err)
}
