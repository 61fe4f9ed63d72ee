package hypersparse

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// IntegrityError describes one inconsistency found by VerifyIntegrity.
type IntegrityError struct {
	Relation string `json:"relation"` // "" for catalog-level problems
	Message  string `json:"message"`
}

func (e IntegrityError) Error() string {
	if e.Relation == "" {
		return "catalog: " + e.Message
	}
	return fmt.Sprintf("relation %s: %s", e.Relation, e.Message)
}

// IntegrityReport is the result of VerifyIntegrity.
type IntegrityReport struct {
	NodesChecked int              `json:"nodes_checked"`
	CellsChecked int              `json:"cells_checked"`
	EdgesChecked int              `json:"edges_checked"`
	Errors       []IntegrityError `json:"errors,omitempty"`
}

// OK reports whether no inconsistency was found.
func (r *IntegrityReport) OK() bool {
	return len(r.Errors) == 0
}

func (r *IntegrityReport) add(relation, msg string) {
	r.Errors = append(r.Errors, IntegrityError{Relation: relation, Message: msg})
}

// VerifyIntegrity checks that the catalog is a bijection, stored props pass
// their checksum, every matrix coordinate names an allocated node and every
// incidence edge has at least one endpoint. It is read-only and safe for
// concurrent use.
func (g *Graph) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	if g.isClosed() {
		return nil, ErrClosed
	}
	report := &IntegrityReport{}

	if bs, ok := g.store.(*boltStore); ok {
		if err := verifyBoltCatalog(bs, report); err != nil {
			return report, fmt.Errorf("hypersparse: integrity check failed: %w", err)
		}
	} else {
		n, err := g.catalog.NodeCount(ctx)
		if err != nil {
			return report, err
		}
		report.NodesChecked = int(n)
	}

	for _, r := range g.Relations() {
		if err := r.verify(ctx, report); err != nil {
			return report, fmt.Errorf("hypersparse: integrity check failed on %s: %w", r.Name(), err)
		}
	}

	if report.OK() {
		g.log.Info("integrity check passed",
			"nodes_checked", report.NodesChecked,
			"cells_checked", report.CellsChecked,
			"edges_checked", report.EdgesChecked,
		)
	} else {
		g.log.Error("integrity check found errors",
			"nodes_checked", report.NodesChecked,
			"errors", len(report.Errors),
		)
	}
	return report, nil
}

func verifyBoltCatalog(s *boltStore, report *IntegrityReport) error {
	return s.db.View(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketNodeNames)
		err := tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			report.NodesChecked++
			back := names.Get(v)
			if back == nil || decodeUint64(back) != decodeUint64(k) {
				report.add("", fmt.Sprintf("node %d (%q) has no matching name entry", decodeUint64(k), v))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if n := names.Stats().KeyN; n != report.NodesChecked {
			report.add("", fmt.Sprintf("%d names for %d node ids", n, report.NodesChecked))
		}
		return tx.Bucket(bucketNodeProps).ForEach(func(k, v []byte) error {
			if _, err := decodeProps(v); err != nil {
				report.add("", fmt.Sprintf("node %d props: %v", decodeUint64(k), err))
			}
			return nil
		})
	})
}
