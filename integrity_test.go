package hypersparse

import (
	"bytes"
	"context"
	"strings"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func TestVerifyIntegrity(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()
	mustRelation(t, g, "friend", RelationOptions{})
	mustRelation(t, g, "r", RelationOptions{Incidence: true, WeightType: Float64})

	err := g.Insert(ctx,
		Simple{Relation: "friend", Source: "bob", Destination: "alice"},
		Hyper{Relation: "r", Sources: []string{"a", "b"}, Destinations: []string{"c"}, Weight: 0.5},
		Simple{Relation: "r", Source: "c", Destination: "a"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateNode(ctx, "alice", Props{"age": 30}); err != nil {
		t.Fatal(err)
	}

	report, err := g.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected clean report, got %v", report.Errors)
	}
	if report.NodesChecked != 5 {
		t.Errorf("NodesChecked = %d, want 5", report.NodesChecked)
	}
	// friend has one cell; r has three source and two destination cells.
	if report.CellsChecked != 6 || report.EdgesChecked != 2 {
		t.Errorf("cells=%d edges=%d, want 6 and 2", report.CellsChecked, report.EdgesChecked)
	}
}

func TestVerifyIntegrityDetectsCorruptProps(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	id, err := g.CreateNode(ctx, "alice", Props{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}

	bs := g.store.(*boltStore)
	err = bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeProps)
		key := encodeUint64(uint64(id))
		data := bytes.Clone(b.Get(key))
		data[len(data)-1] ^= 0xFF
		return b.Put(key, data)
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := g.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.OK() {
		t.Fatal("expected a props checksum error")
	}
	if !strings.Contains(report.Errors[0].Error(), "catalog:") {
		t.Errorf("unexpected error %q", report.Errors[0].Error())
	}
}

func TestVerifyIntegrityDetectsDanglingName(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	if _, err := g.Catalog().ResolveOrCreate(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	bs := g.store.(*boltStore)
	err := bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodeNames).Delete([]byte("alice"))
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := g.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Errors) != 2 {
		t.Fatalf("expected a bijection error and a count error, got %v", report.Errors)
	}
}
