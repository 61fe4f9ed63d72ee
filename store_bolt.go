package hypersparse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

// Bucket names used in bbolt.
var (
	bucketNodes         = []byte("nodes")          // id -> name
	bucketNodeNames     = []byte("node_names")     // name -> id
	bucketNodeProps     = []byte("node_props")     // id -> encoded props
	bucketRelations     = []byte("relations")      // id -> msgpack RelationInfo
	bucketRelationNames = []byte("relation_names") // name -> id
	bucketEdges         = []byte("edges")          // sequence only
)

var allBuckets = [][]byte{
	bucketNodes,
	bucketNodeNames,
	bucketNodeProps,
	bucketRelations,
	bucketRelationNames,
	bucketEdges,
}

// boltSyncInterval is how often the background goroutine syncs when NoSync
// is set.
const boltSyncInterval = 200 * time.Millisecond

// boltStore is the default on-disk Store: one bbolt file per graph.
type boltStore struct {
	db   *bolt.DB
	path string

	// writeSem bounds the goroutines queued on bbolt's single writer lock.
	writeSem     chan struct{}
	writeTimeout time.Duration

	stopSync chan struct{}
	syncDone chan struct{}
}

// OpenBoltStore opens or creates the bbolt catalog file at path.
func OpenBoltStore(path string, opts Options) (Store, error) {
	return openBoltStore(path, opts)
}

func openBoltStore(path string, opts Options) (*boltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("hypersparse: failed to create directory %s: %w", dir, err)
	}

	boltOpts := *bolt.DefaultOptions
	boltOpts.NoSync = opts.NoSync
	boltOpts.ReadOnly = opts.ReadOnly
	if opts.MmapSize > 0 {
		boltOpts.InitialMmapSize = opts.MmapSize
	}

	db, err := bolt.Open(path, 0600, &boltOpts)
	if err != nil {
		return nil, fmt.Errorf("hypersparse: failed to open bolt db at %s: %w", path, err)
	}
	// Without fsync there is nothing to amortize, so fire batches at once.
	if opts.NoSync {
		db.MaxBatchDelay = 0
	}

	queueSize := opts.WriteQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &boltStore{
		db:           db,
		path:         path,
		writeSem:     make(chan struct{}, queueSize),
		writeTimeout: opts.WriteTimeout,
	}

	if opts.ReadOnly {
		return s, nil
	}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, err
	}

	if opts.NoSync {
		s.stopSync = make(chan struct{})
		s.syncDone = make(chan struct{})
		go s.backgroundSync()
	}
	return s, nil
}

func (s *boltStore) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("hypersparse: failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// acquireWrite obtains a write slot, blocking until one frees up or the
// context (bounded by writeTimeout when it has no deadline) is done.
// The caller must call releaseWrite afterwards.
func (s *boltStore) acquireWrite(ctx context.Context) error {
	if s.writeTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
			defer cancel()
		}
	}

	select {
	case s.writeSem <- struct{}{}:
		return nil
	default:
		select {
		case s.writeSem <- struct{}{}:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrWriteQueueFull, ctx.Err())
		}
	}
}

func (s *boltStore) releaseWrite() {
	<-s.writeSem
}

// writeUpdate runs fn in a bbolt Batch under the write semaphore.
// Batch may call fn more than once, so fn must only derive its outputs from
// the transaction it is given.
func (s *boltStore) writeUpdate(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := s.acquireWrite(ctx); err != nil {
		return err
	}
	defer s.releaseWrite()
	return s.db.Batch(fn)
}

func (s *boltStore) ResolveNode(ctx context.Context, name string) (NodeID, bool, error) {
	if id, ok, err := s.LookupNode(ctx, name); err != nil || ok {
		return id, false, err
	}

	var (
		id      NodeID
		created bool
	)
	err := s.writeUpdate(ctx, func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketNodeNames)
		if v := names.Get([]byte(name)); v != nil {
			id, created = NodeID(decodeUint64(v)), false
			return nil
		}
		nodes := tx.Bucket(bucketNodes)
		seq, err := nodes.NextSequence()
		if err != nil {
			return err
		}
		id, created = NodeID(seq), true
		key := encodeUint64(seq)
		if err := nodes.Put(key, []byte(name)); err != nil {
			return err
		}
		return names.Put([]byte(name), key)
	})
	if err != nil {
		return 0, false, fmt.Errorf("hypersparse: resolve node %q: %w", name, err)
	}
	return id, created, nil
}

func (s *boltStore) LookupNode(_ context.Context, name string) (NodeID, bool, error) {
	var (
		id NodeID
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketNodeNames).Get([]byte(name)); v != nil {
			id, ok = NodeID(decodeUint64(v)), true
		}
		return nil
	})
	return id, ok, err
}

func (s *boltStore) NodeName(_ context.Context, id NodeID) (string, error) {
	var name string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketNodes).Get(encodeUint64(uint64(id)))
		if v == nil {
			return fmt.Errorf("%w: node %d", ErrNotFound, id)
		}
		name = string(v)
		return nil
	})
	return name, err
}

func (s *boltStore) SetNodeProps(ctx context.Context, id NodeID, props Props) error {
	data, err := encodeProps(props)
	if err != nil {
		return fmt.Errorf("hypersparse: encode props: %w", err)
	}
	key := encodeUint64(uint64(id))
	return s.writeUpdate(ctx, func(tx *bolt.Tx) error {
		if tx.Bucket(bucketNodes).Get(key) == nil {
			return fmt.Errorf("%w: node %d", ErrNotFound, id)
		}
		return tx.Bucket(bucketNodeProps).Put(key, data)
	})
}

func (s *boltStore) NodeProps(_ context.Context, id NodeID) (Props, error) {
	var props Props
	key := encodeUint64(uint64(id))
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketNodes).Get(key) == nil {
			return fmt.Errorf("%w: node %d", ErrNotFound, id)
		}
		v := tx.Bucket(bucketNodeProps).Get(key)
		if v == nil {
			props = Props{}
			return nil
		}
		var err error
		props, err = decodeProps(v)
		return err
	})
	return props, err
}

func (s *boltStore) NodeCount(context.Context) (uint64, error) {
	var n uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		n = uint64(tx.Bucket(bucketNodes).Stats().KeyN)
		return nil
	})
	return n, err
}

func (s *boltStore) CreateRelation(ctx context.Context, info RelationInfo) (RelationID, error) {
	var id RelationID
	err := s.writeUpdate(ctx, func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketRelationNames)
		if names.Get([]byte(info.Name)) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateRelation, info.Name)
		}
		rels := tx.Bucket(bucketRelations)
		seq, err := rels.NextSequence()
		if err != nil {
			return err
		}
		rec := info
		rec.ID = RelationID(seq)
		data, err := msgpack.Marshal(&rec)
		if err != nil {
			return err
		}
		key := encodeUint64(seq)
		if err := rels.Put(key, data); err != nil {
			return err
		}
		id = rec.ID
		return names.Put([]byte(info.Name), key)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *boltStore) Relations(context.Context) ([]RelationInfo, error) {
	var out []RelationInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRelations).ForEach(func(_, v []byte) error {
			var info RelationInfo
			if err := msgpack.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("hypersparse: decode relation: %w", err)
			}
			out = append(out, info)
			return nil
		})
	})
	return out, err
}

func (s *boltStore) NextEdgeID(ctx context.Context) (EdgeID, error) {
	var id EdgeID
	err := s.writeUpdate(ctx, func(tx *bolt.Tx) error {
		seq, err := tx.Bucket(bucketEdges).NextSequence()
		id = EdgeID(seq)
		return err
	})
	return id, err
}

func (s *boltStore) backgroundSync() {
	defer close(s.syncDone)
	ticker := time.NewTicker(boltSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSync:
			_ = s.db.Sync()
			return
		case <-ticker.C:
			_ = s.db.Sync()
		}
	}
}

func (s *boltStore) fileSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *boltStore) Close() error {
	if s.stopSync != nil {
		close(s.stopSync)
		<-s.syncDone
	}
	return s.db.Close()
}
