package hypersparse

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
)

func readAllWAL(t *testing.T, w *WAL) []*WALEntry {
	t.Helper()
	reader, err := w.NewReader(1)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	var entries []*WALEntry
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestWAL_BasicAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWAL(dir, true, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for i := range 3 {
		data, err := encodeWALPayload(&walAdjacency{Relation: 1, Source: NodeID(i + 1), Destination: 9, Weight: int64(i)})
		if err != nil {
			t.Fatal(err)
		}
		lsn, err := w.Append(OpInsertAdjacency, data)
		if err != nil {
			t.Fatal(err)
		}
		if lsn != uint64(i+1) {
			t.Fatalf("expected LSN %d, got %d", i+1, lsn)
		}
	}

	entries := readAllWAL(t, w)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.LSN != uint64(i+1) {
			t.Errorf("entry %d has LSN %d", i, e.LSN)
		}
		if e.Op != OpInsertAdjacency {
			t.Errorf("entry %d has op %s", i, e.Op)
		}
		var p walAdjacency
		if err := decodeWALPayload(e.Payload, &p); err != nil {
			t.Fatal(err)
		}
		if p.Source != NodeID(i+1) || p.Destination != 9 {
			t.Errorf("entry %d decoded as %+v", i, p)
		}
	}
}

func TestWAL_ReadFromLSN(t *testing.T) {
	w, err := OpenWAL(t.TempDir(), true, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for range 5 {
		if _, err := w.Append(OpInsertIncidence, []byte{0x80}); err != nil {
			t.Fatal(err)
		}
	}

	reader, err := w.NewReader(4)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	var lsns []uint64
	for {
		e, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		lsns = append(lsns, e.LSN)
	}
	if len(lsns) != 2 || lsns[0] != 4 || lsns[1] != 5 {
		t.Fatalf("expected LSNs [4 5], got %v", lsns)
	}
}

func TestWAL_CrashRecovery(t *testing.T) {
	dir := t.TempDir()

	w, err := OpenWAL(dir, true, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if _, err := w.Append(OpInsertAdjacency, []byte{0x80}); err != nil {
			t.Fatal(err)
		}
	}
	lastLSN := w.LastLSN()
	segPath := w.segmentPath(w.currentSegN)
	w.Close()

	// Simulate a crash mid-frame: a length prefix with no body.
	f, err := os.OpenFile(segPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 40, 1, 2}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	w2, err := OpenWAL(dir, true, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()

	if w2.nextLSN.Load() != lastLSN+1 {
		t.Fatalf("expected next LSN %d, got %d", lastLSN+1, w2.nextLSN.Load())
	}
	newLSN, err := w2.Append(OpInsertAdjacency, []byte{0x80})
	if err != nil {
		t.Fatal(err)
	}
	if newLSN != lastLSN+1 {
		t.Fatalf("new LSN %d should follow %d", newLSN, lastLSN)
	}

	// The torn tail was dropped, so the new frame is readable.
	entries := readAllWAL(t, w2)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries after recovery, got %d", len(entries))
	}
	if entries[3].LSN != newLSN {
		t.Errorf("last entry LSN %d, want %d", entries[3].LSN, newLSN)
	}
}

func TestWAL_GraphLogsOneEntryPerEdge(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()
	mustRelation(t, g, "friend", RelationOptions{})
	mustRelation(t, g, "r", RelationOptions{Incidence: true, WeightType: Int64})

	err := g.Insert(ctx,
		Simple{Relation: "friend", Source: "bob", Destination: "alice"},
		Hyper{Relation: "r", Sources: []string{"a", "b"}, Destinations: []string{"c"}, SourceWeights: []any{1, 2}, DestinationWeights: []any{3}},
	)
	if err != nil {
		t.Fatal(err)
	}

	entries := readAllWAL(t, g.wal)
	if len(entries) != 2 {
		t.Fatalf("expected 2 WAL entries, got %d", len(entries))
	}
	if entries[0].Op != OpInsertAdjacency || entries[1].Op != OpInsertIncidence {
		t.Fatalf("unexpected ops %s, %s", entries[0].Op, entries[1].Op)
	}

	var p walIncidence
	if err := decodeWALPayload(entries[1].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if len(p.Sources) != 2 || len(p.Destinations) != 1 || p.Edge == 0 {
		t.Errorf("unexpected incidence payload %+v", p)
	}
	if len(p.SourceWeights) != 2 || len(p.DestinationWeights) != 1 {
		t.Errorf("expected per-endpoint weights, got %v / %v", p.SourceWeights, p.DestinationWeights)
	}
	if got := g.Metrics().WALAppends.Load(); got != 2 {
		t.Errorf("WALAppends = %d, want 2", got)
	}
}

func TestWAL_RejectedInsertNotLogged(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()
	mustRelation(t, g, "w", RelationOptions{WeightType: Int64})

	if err := g.Insert(ctx, Simple{Relation: "w", Source: "a", Destination: "b", Weight: "x"}); err == nil {
		t.Fatal("expected type mismatch")
	}
	if lsn := g.wal.LastLSN(); lsn != 0 {
		t.Errorf("rejected insert reached the WAL (LSN %d)", lsn)
	}
}
