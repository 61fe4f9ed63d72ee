package hypersparse

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ---------------------------------------------------------------------------
// WAL replay: rebuilds the in-memory matrices when a graph is opened.
//
// The catalog (names, props, relation declarations, edge id sequence) is
// durable in the Store; the matrices exist only in memory and in the WAL.
// Replay reads every entry in LSN order and applies it directly to the
// owning relation, bypassing Insert:
//
//   - Deterministic: payloads carry resolved node and edge ids, so nothing
//     is allocated during replay.
//   - Idempotent: adjacency cells are overwritten, incidence columns are
//     keyed by edge id, so applying an entry twice is harmless.
//   - Sequential: replay runs in Open before the graph is shared.
// ---------------------------------------------------------------------------

// walHeader decodes only the relation id shared by every payload.
type walHeader struct {
	Relation RelationID `msgpack:"rel"`
}

// replayer applies WAL entries to a graph's relations.
type replayer struct {
	g          *Graph
	appliedLSN uint64
	applied    int
}

// apply replays one entry. Entries at or below appliedLSN are skipped.
func (p *replayer) apply(entry *WALEntry) error {
	if entry.LSN <= p.appliedLSN {
		return nil
	}

	switch entry.Op {
	case OpInsertAdjacency, OpInsertIncidence:
	default:
		return fmt.Errorf("hypersparse: replay: unknown op type %d at LSN %d", entry.Op, entry.LSN)
	}

	var h walHeader
	if err := decodeWALPayload(entry.Payload, &h); err != nil {
		return fmt.Errorf("hypersparse: replay: decode LSN %d: %w", entry.LSN, err)
	}
	rel, ok := p.g.byID[h.Relation]
	if !ok {
		return fmt.Errorf("%w: replay: relation id %d at LSN %d", ErrUnknownRelation, h.Relation, entry.LSN)
	}
	if err := rel.replay(entry.Op, entry.Payload); err != nil {
		return fmt.Errorf("hypersparse: replay: failed to apply LSN %d (%s) to %s: %w", entry.LSN, entry.Op, rel.Name(), err)
	}

	p.appliedLSN = entry.LSN
	p.applied++
	p.g.metrics.ReplayedEdges.Add(1)
	return nil
}

// replayWAL rebuilds every relation from the WAL.
func (g *Graph) replayWAL() error {
	if g.wal == nil {
		return nil
	}
	start := time.Now()

	r, err := g.wal.NewReader(1)
	if err != nil {
		return fmt.Errorf("hypersparse: replay: %w", err)
	}
	defer r.Close()

	p := &replayer{g: g}
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("hypersparse: replay: read WAL after LSN %d: %w", p.appliedLSN, err)
		}
		if err := p.apply(entry); err != nil {
			return err
		}
	}

	if p.applied > 0 {
		g.log.Info("WAL replayed",
			"entries", p.applied,
			"last_lsn", p.appliedLSN,
			"duration", time.Since(start).String(),
		)
	}
	return nil
}
