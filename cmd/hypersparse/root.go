package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mstrYoda/hypersparse"
	"github.com/mstrYoda/hypersparse/pgstore"
	"github.com/mstrYoda/hypersparse/rpc"
)

// cliContext holds the persistent flags shared by every command.
type cliContext struct {
	dir          string
	inMemory     bool
	readOnly     bool
	noSync       bool
	pgDSN        string
	remote       string
	logLevel     slog.Level
	workers      int
	maxRows      int
	queryTimeout time.Duration
	slowQuery    time.Duration
}

func newRootCmd() *cobra.Command {
	cc := &cliContext{}
	root := &cobra.Command{
		Use:           "hypersparse",
		Short:         "hypersparse graph database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cc.addFlags(root.PersistentFlags())
	root.AddCommand(
		newServeCmd(cc),
		newRelationCmd(cc),
		newInsertCmd(cc),
		newQueryCmd(cc),
		newProjectCmd(cc),
		newStatsCmd(cc),
		newImportSQLCmd(cc),
	)
	return root
}

func (cc *cliContext) addFlags(fs *pflag.FlagSet) {
	def := hypersparse.DefaultOptions()
	fs.StringVar(&cc.dir, "dir", "./hypersparse-data", "graph directory (catalog and WAL)")
	fs.BoolVar(&cc.inMemory, "in-memory", false, "keep the graph in process memory only")
	fs.BoolVar(&cc.readOnly, "read-only", false, "open the graph without allowing writes")
	fs.BoolVar(&cc.noSync, "no-sync", false, "skip fsync on catalog commits and WAL appends")
	fs.StringVar(&cc.pgDSN, "pg-dsn", "", "keep the node catalog in PostgreSQL instead of bbolt")
	fs.StringVar(&cc.remote, "remote", "", "address of a running gRPC server to send commands to")
	fs.Var(levelFlag{&cc.logLevel}, "log-level", "debug, info, warn or error")
	fs.IntVar(&cc.workers, "workers", def.WorkerPoolSize, "query worker pool size")
	fs.IntVar(&cc.maxRows, "max-result-rows", 0, "cap on edges a single query may return (0 = unlimited)")
	fs.DurationVar(&cc.queryTimeout, "query-timeout", 0, "default query timeout (0 = none)")
	fs.DurationVar(&cc.slowQuery, "slow-query", def.SlowQueryThreshold, "slow query log threshold")
}

// levelFlag lets slog.Level be set from the command line.
type levelFlag struct{ level *slog.Level }

var _ pflag.Value = levelFlag{}

func (f levelFlag) String() string {
	if f.level == nil {
		return "info"
	}
	return strings.ToLower(f.level.String())
}

func (f levelFlag) Set(s string) error { return f.level.UnmarshalText([]byte(s)) }

func (f levelFlag) Type() string { return "level" }

func (cc *cliContext) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cc.logLevel}))
}

func (cc *cliContext) options(log *slog.Logger) hypersparse.Options {
	opts := hypersparse.DefaultOptions()
	opts.Logger = log
	opts.ReadOnly = cc.readOnly
	opts.NoSync = cc.noSync
	opts.WALNoSync = cc.noSync
	opts.WorkerPoolSize = cc.workers
	opts.MaxResultRows = cc.maxRows
	opts.DefaultQueryTimeout = cc.queryTimeout
	opts.SlowQueryThreshold = cc.slowQuery
	return opts
}

func (cc *cliContext) openGraph(ctx context.Context, log *slog.Logger) (*hypersparse.Graph, error) {
	opts := cc.options(log)
	if cc.pgDSN != "" {
		store, err := pgstore.Open(ctx, cc.pgDSN, log)
		if err != nil {
			return nil, err
		}
		opts.Store = store
	}
	if cc.inMemory {
		return hypersparse.OpenInMemory(opts)
	}
	return hypersparse.Open(cc.dir, opts)
}

// backend is what the data commands need; a local graph and a remote
// rpc.Client both provide it.
type backend interface {
	AddRelation(ctx context.Context, req *rpc.AddRelationRequest) (*rpc.RelationInfo, error)
	Relations(ctx context.Context) ([]rpc.RelationInfo, error)
	Insert(ctx context.Context, tuples ...[]any) (int, error)
	Query(ctx context.Context, p hypersparse.Pattern) (hypersparse.EdgeIterator, error)
	Project(ctx context.Context, relation, combine string) (*rpc.ProjectReply, error)
	Stats(ctx context.Context) (*hypersparse.GraphStats, error)
	Close() error
}

var _ backend = (*rpc.Client)(nil)

// localBackend runs commands against a graph opened in this process,
// sharing request handling with the gRPC server.
type localBackend struct {
	g   *hypersparse.Graph
	srv *rpc.Server
}

func (b *localBackend) AddRelation(ctx context.Context, req *rpc.AddRelationRequest) (*rpc.RelationInfo, error) {
	return b.srv.AddRelation(ctx, req)
}

func (b *localBackend) Relations(ctx context.Context) ([]rpc.RelationInfo, error) {
	out, err := b.srv.Relations(ctx, &rpc.RelationsRequest{})
	if err != nil {
		return nil, err
	}
	return out.Relations, nil
}

func (b *localBackend) Insert(ctx context.Context, tuples ...[]any) (int, error) {
	return b.g.InsertTuples(ctx, tuples...)
}

func (b *localBackend) Query(ctx context.Context, p hypersparse.Pattern) (hypersparse.EdgeIterator, error) {
	return b.g.Query(ctx, p)
}

func (b *localBackend) Project(ctx context.Context, relation, combine string) (*rpc.ProjectReply, error) {
	return b.srv.Project(ctx, &rpc.ProjectRequest{Relation: relation, Combine: combine})
}

func (b *localBackend) Stats(ctx context.Context) (*hypersparse.GraphStats, error) {
	return b.g.Stats(ctx)
}

func (b *localBackend) Close() error { return b.g.Close() }

func (cc *cliContext) backend(ctx context.Context) (backend, error) {
	if cc.remote != "" {
		return rpc.Dial(cc.remote)
	}
	log := cc.logger()
	g, err := cc.openGraph(ctx, log)
	if err != nil {
		return nil, err
	}
	return &localBackend{g: g, srv: rpc.NewServer(g, rpc.WithLogger(log))}, nil
}

// withBackend opens a backend for one command and closes it afterwards.
func (cc *cliContext) withBackend(cmd *cobra.Command, fn func(context.Context, backend) error) error {
	ctx := cmdContext(cmd)
	b, err := cc.backend(ctx)
	if err != nil {
		return err
	}
	err = fn(ctx, b)
	if cerr := b.Close(); err == nil {
		err = cerr
	}
	return err
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
