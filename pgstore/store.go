// Package pgstore is a PostgreSQL-backed hypersparse.Store.
//
// Node names, properties and relation declarations live in three tables;
// edge ids come from a sequence. Any Postgres-wire database that supports
// INSERT ... ON CONFLICT works, including CockroachDB.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mstrYoda/hypersparse"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS hypersparse_nodes (
		id    BIGSERIAL PRIMARY KEY,
		name  TEXT NOT NULL UNIQUE,
		props JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS hypersparse_relations (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		weight_type TEXT NOT NULL,
		kind        SMALLINT NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS hypersparse_edge_ids`,
}

// Store implements hypersparse.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
	own  bool // Close closes pool
}

var _ hypersparse.Store = (*Store)(nil)

// Open connects to dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.own = true
	return s, nil
}

// Connect opens a pool on dsn without creating the catalog schema. The
// result is only good for Tuples and Import.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return &Store{pool: pool, log: logger, own: true}, nil
}

// New wraps an existing pool. Close leaves the pool open.
func New(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("pgstore: migrate: %w", err)
		}
	}
	logger.Info("pgstore ready")
	return &Store{pool: pool, log: logger}, nil
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// ResolveNode looks the name up first so the id sequence is only consumed
// for names that are really new; the conflict clause settles races.
func (s *Store) ResolveNode(ctx context.Context, name string) (hypersparse.NodeID, bool, error) {
	if id, ok, err := s.LookupNode(ctx, name); err != nil || ok {
		return id, false, err
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO hypersparse_nodes (name) VALUES ($1)
		 ON CONFLICT (name) DO NOTHING RETURNING id`, name).Scan(&id)
	switch {
	case err == nil:
		return hypersparse.NodeID(id), true, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Lost the race; the winner's row is visible now.
		found, ok, err := s.LookupNode(ctx, name)
		if err == nil && !ok {
			err = fmt.Errorf("pgstore: node %q vanished after conflict", name)
		}
		return found, false, err
	default:
		return 0, false, fmt.Errorf("pgstore: resolve node %q: %w", name, err)
	}
}

func (s *Store) LookupNode(ctx context.Context, name string) (hypersparse.NodeID, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM hypersparse_nodes WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("pgstore: lookup node %q: %w", name, err)
	}
	return hypersparse.NodeID(id), true, nil
}

func (s *Store) NodeName(ctx context.Context, id hypersparse.NodeID) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM hypersparse_nodes WHERE id = $1`, int64(id)).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: node %d", hypersparse.ErrNotFound, id)
	}
	return name, err
}

func (s *Store) SetNodeProps(ctx context.Context, id hypersparse.NodeID, props hypersparse.Props) error {
	if props == nil {
		props = hypersparse.Props{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("pgstore: encode props: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE hypersparse_nodes SET props = $2::jsonb WHERE id = $1`, int64(id), string(data))
	if err != nil {
		return fmt.Errorf("pgstore: set props: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: node %d", hypersparse.ErrNotFound, id)
	}
	return nil
}

func (s *Store) NodeProps(ctx context.Context, id hypersparse.NodeID) (hypersparse.Props, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT props::text FROM hypersparse_nodes WHERE id = $1`, int64(id)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: node %d", hypersparse.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get props: %w", err)
	}
	props := hypersparse.Props{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &props); err != nil {
			return nil, fmt.Errorf("pgstore: decode props: %w", err)
		}
	}
	return props, nil
}

func (s *Store) NodeCount(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM hypersparse_nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgstore: count nodes: %w", err)
	}
	return uint64(n), nil
}

func (s *Store) CreateRelation(ctx context.Context, info hypersparse.RelationInfo) (hypersparse.RelationID, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO hypersparse_relations (name, weight_type, kind) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING RETURNING id`,
		info.Name, info.WeightType, int16(info.Kind)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", hypersparse.ErrDuplicateRelation, info.Name)
	}
	if err != nil {
		return 0, fmt.Errorf("pgstore: create relation %s: %w", info.Name, err)
	}
	return hypersparse.RelationID(id), nil
}

func (s *Store) Relations(ctx context.Context) ([]hypersparse.RelationInfo, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, weight_type, kind FROM hypersparse_relations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list relations: %w", err)
	}
	defer rows.Close()

	var out []hypersparse.RelationInfo
	for rows.Next() {
		var (
			id   int64
			info hypersparse.RelationInfo
			kind int16
		)
		if err := rows.Scan(&id, &info.Name, &info.WeightType, &kind); err != nil {
			return nil, err
		}
		info.ID = hypersparse.RelationID(id)
		info.Kind = hypersparse.Kind(kind)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *Store) NextEdgeID(ctx context.Context) (hypersparse.EdgeID, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('hypersparse_edge_ids')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("pgstore: next edge id: %w", err)
	}
	return hypersparse.EdgeID(id), nil
}

func (s *Store) Close() error {
	if s.own {
		s.pool.Close()
	}
	return nil
}
