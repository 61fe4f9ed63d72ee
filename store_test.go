package hypersparse_test

import (
	"path/filepath"
	"testing"

	"github.com/mstrYoda/hypersparse"
	"github.com/mstrYoda/hypersparse/storetest"
)

func TestMemStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) hypersparse.Store {
		return hypersparse.NewMemStore()
	})
}

func TestBoltStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) hypersparse.Store {
		opts := hypersparse.DefaultOptions()
		opts.NoSync = true
		s, err := hypersparse.OpenBoltStore(filepath.Join(t.TempDir(), "catalog.db"), opts)
		if err != nil {
			t.Fatalf("OpenBoltStore: %v", err)
		}
		return s
	})
}
