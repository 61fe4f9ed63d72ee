package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mstrYoda/hypersparse"
	"github.com/mstrYoda/hypersparse/pgstore"
	"github.com/mstrYoda/hypersparse/rpc"
)

func newRelationCmd(cc *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relation",
		Short: "declares and lists relations",
	}

	var req rpc.AddRelationRequest
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "declares a relation",
		Long: `
	Declares a relation. Adjacency relations (the default) hold one weight per
	(source, destination) pair; --incidence relations keep every edge, so they
	support parallel edges and hyperedges.
	`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			return cc.withBackend(cmd, func(ctx context.Context, b backend) error {
				info, err := b.AddRelation(ctx, &req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", info.Name, info.Kind, info.WeightType)
				return nil
			})
		},
	}
	add.Flags().StringVar(&req.WeightType, "weight-type", "", "BOOL, INT64, FP64 or FC32 (default BOOL)")
	add.Flags().BoolVar(&req.Incidence, "incidence", false, "store every edge separately (multi-edges, hyperedges)")

	ls := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "lists relations in declaration order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withBackend(cmd, func(ctx context.Context, b backend) error {
				rels, err := b.Relations(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tKIND\tWEIGHT\tLEN")
				for _, r := range rels {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.Name, r.Kind, r.WeightType, r.Len)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(add, ls)
	return cmd
}

func newInsertCmd(cc *cliContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "insert [tuple...]",
		Short: "inserts edges given as JSON tuples",
		Long: `
	Each tuple is a JSON array (relation, source, destination[, weight]).
	Either endpoint may be an array of names, which makes a hyperedge:

	  hypersparse insert '["friend","bob","alice"]' '["meeting",["a","b"],"c"]'

	With --file, tuples are read one per line ("-" reads stdin). Every tuple
	is checked before the first edge is written.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var tuples [][]any
			for i, arg := range args {
				ts, err := decodeTuples(bytes.NewReader([]byte(arg)))
				if err != nil {
					return fmt.Errorf("tuple %d: %w", i, err)
				}
				tuples = append(tuples, ts...)
			}
			if file != "" {
				r := cmd.InOrStdin()
				if file != "-" {
					f, err := os.Open(file)
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				ts, err := decodeTuples(r)
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				tuples = append(tuples, ts...)
			}
			if len(tuples) == 0 {
				return fmt.Errorf("no tuples given")
			}

			return cc.withBackend(cmd, func(ctx context.Context, b backend) error {
				n, err := b.Insert(ctx, tuples...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "inserted %d edges\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read newline-separated JSON tuples from a file")
	return cmd
}

// decodeTuples reads a stream of JSON arrays.
func decodeTuples(r io.Reader) ([][]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out [][]any
	for {
		var t []any
		err := dec.Decode(&t)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, normalizeNumbers(t).([]any))
	}
}

// normalizeNumbers turns json.Number into int64 or float64 so tuples
// survive the msgpack wire to a remote server.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = normalizeNumbers(x[i])
		}
		return x
	}
	return v
}

func newQueryCmd(cc *cliContext) *cobra.Command {
	var (
		p      hypersparse.Pattern
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "lists the edges matching a pattern",
		Long: `
	Prints every edge whose sources include --source and whose destinations
	include --destination, restricted to --relation when given. Omitted
	fields match anything.
	`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withBackend(cmd, func(ctx context.Context, b backend) error {
				it, err := b.Query(ctx, p)
				if err != nil {
					return err
				}
				defer it.Close()
				out := cmd.OutOrStdout()
				enc := json.NewEncoder(out)
				for it.Next() {
					e := it.Edge()
					if asJSON {
						if err := enc.Encode(e.Portable()); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintln(out, e)
				}
				return it.Err()
			})
		},
	}
	cmd.Flags().StringVar(&p.Source, "source", "", "source node name")
	cmd.Flags().StringVar(&p.Relation, "relation", "", "relation name")
	cmd.Flags().StringVar(&p.Destination, "destination", "", "destination node name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per edge")
	return cmd
}

func newProjectCmd(cc *cliContext) *cobra.Command {
	var (
		combine string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "project <relation>",
		Short: "prints the node by node projection of a relation",
		Long: `
	Collapses a relation to one weight per (source, destination) pair. For
	incidence relations parallel edges are combined with --combine:
	plus_times (default), plus_second, any_second, min_plus, max_times or
	lor_land.
	`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withBackend(cmd, func(ctx context.Context, b backend) error {
				proj, err := b.Project(ctx, args[0], combine)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(proj)
				}
				for _, cell := range proj.Cells {
					fmt.Fprintln(out, cell)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&combine, "combine", "", "combine rule for parallel edges")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the projection as JSON")
	return cmd
}

func newStatsCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "prints graph statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withBackend(cmd, func(ctx context.Context, b backend) error {
				st, err := b.Stats(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			})
		},
	}
}

func newImportSQLCmd(cc *cliContext) *cobra.Command {
	var sourceDSN, relation string
	cmd := &cobra.Command{
		Use:   "import-sql <query> [arg...]",
		Short: "inserts the rows of a SQL query as edges",
		Long: `
	Runs a query against PostgreSQL and inserts each row as a tuple. With
	--relation the rows are (source, destination[, weight]); without it they
	are (relation, source, destination[, weight]). Text array columns become
	hyperedge endpoint sets. Extra arguments are bound to $1, $2, ...

	  hypersparse import-sql --relation distance \
	    'SELECT origin, dest, miles::bigint FROM flights WHERE miles > $1' 100
	`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := sourceDSN
			if dsn == "" {
				dsn = cc.pgDSN
			}
			if dsn == "" {
				return fmt.Errorf("import-sql needs --source-dsn or --pg-dsn")
			}
			ctx := cmdContext(cmd)
			src, err := pgstore.Connect(ctx, dsn, cc.logger())
			if err != nil {
				return err
			}
			defer src.Close()

			params := make([]any, len(args)-1)
			for i, a := range args[1:] {
				params[i] = a
			}
			tuples, err := src.Tuples(ctx, args[0], params...)
			if err != nil {
				return err
			}
			if relation != "" {
				for i, t := range tuples {
					tuples[i] = append([]any{relation}, t...)
				}
			}

			return cc.withBackend(cmd, func(ctx context.Context, b backend) error {
				n, err := b.Insert(ctx, tuples...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d edges\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceDSN, "source-dsn", "", "database to read rows from (default --pg-dsn)")
	cmd.Flags().StringVar(&relation, "relation", "", "relation every row belongs to")
	return cmd
}
