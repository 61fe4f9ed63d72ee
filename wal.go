package hypersparse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ---------------------------------------------------------------------------
// Write-Ahead Log (WAL)
//
// The catalog store persists names, relations and the edge sequence. The
// matrices themselves are rebuilt at open by replaying the WAL: one entry
// per applied edge, written after its names and edge id are durable and
// before the matrices are touched.
//
// On-disk format per entry:
//
//	┌────────────┬──────────────────────┬────────────┐
//	│ frameLen   │ entry (msgpack)      │ CRC32      │
//	│ (4 bytes)  │ (frameLen bytes)     │ (4 bytes)  │
//	└────────────┴──────────────────────┴────────────┘
//
// Segments are named "wal-NNNNNNNNNN.log" and rotated at walSegmentMaxSize.
// A torn or corrupted frame ends its segment; since one entry is one edge,
// a crash never replays half an edge.
// ---------------------------------------------------------------------------

const (
	walSegmentMaxSize    = 64 * 1024 * 1024
	walFilePattern       = "wal-%010d.log"
	walGroupCommitPeriod = 2 * time.Millisecond
)

// WAL is the segment-rotated edge log.
//
// Group commit: Append writes to the page cache and a background goroutine
// fsyncs every walGroupCommitPeriod.
type WAL struct {
	mu          sync.Mutex
	dir         string
	currentSeg  *os.File
	currentSegN uint64
	currentSize int64
	nextLSN     atomic.Uint64
	noSync      bool
	readOnly    bool
	log         *slog.Logger
	closed      bool

	dirty  atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenWAL opens or creates the WAL under dir/wal and recovers the next LSN
// from the last segment.
func OpenWAL(dir string, noSync bool, logger *slog.Logger) (*WAL, error) {
	walDir := filepath.Join(dir, "wal")
	if err := os.MkdirAll(walDir, 0755); err != nil {
		return nil, fmt.Errorf("hypersparse: WAL: failed to create directory: %w", err)
	}

	w := &WAL{
		dir:    walDir,
		noSync: noSync,
		log:    logger,
	}

	segments, err := w.listSegments()
	if err != nil {
		return nil, fmt.Errorf("hypersparse: WAL: failed to list segments: %w", err)
	}

	if len(segments) > 0 {
		lastSeg := segments[len(segments)-1]
		w.currentSegN = lastSeg
		lastLSN, validSize, err := w.scanSegment(lastSeg)
		if err != nil {
			return nil, fmt.Errorf("hypersparse: WAL: failed to scan segment %d: %w", lastSeg, err)
		}
		// Drop a torn tail so new frames are not appended behind garbage.
		if err := truncateTail(w.segmentPath(lastSeg), validSize, logger); err != nil {
			return nil, err
		}
		// A freshly rotated segment is empty; the LSN lives in an older one.
		for i := len(segments) - 2; lastLSN == 0 && i >= 0; i-- {
			if lastLSN, _, err = w.scanSegment(segments[i]); err != nil {
				return nil, fmt.Errorf("hypersparse: WAL: failed to scan segment %d: %w", segments[i], err)
			}
		}
		w.nextLSN.Store(lastLSN + 1)
	} else {
		w.nextLSN.Store(1)
	}

	f, err := os.OpenFile(w.segmentPath(w.currentSegN), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("hypersparse: WAL: failed to open segment: %w", err)
	}
	w.currentSeg = f
	if info, _ := f.Stat(); info != nil {
		w.currentSize = info.Size()
	}

	if !w.noSync {
		w.stopCh = make(chan struct{})
		w.doneCh = make(chan struct{})
		go w.syncLoop()
	}

	logger.Info("WAL opened",
		"dir", walDir,
		"segment", w.currentSegN,
		"next_lsn", w.nextLSN.Load(),
		"group_commit", !w.noSync,
	)
	return w, nil
}

// OpenWALReadOnly opens an existing WAL for reading. Nothing on disk is
// created or truncated, and Append returns ErrReadOnly.
func OpenWALReadOnly(dir string, logger *slog.Logger) (*WAL, error) {
	w := &WAL{
		dir:      filepath.Join(dir, "wal"),
		noSync:   true,
		readOnly: true,
		log:      logger,
	}
	segments, err := w.listSegments()
	if err != nil {
		return nil, fmt.Errorf("hypersparse: WAL: failed to list segments: %w", err)
	}
	var lastLSN uint64
	for i := len(segments) - 1; lastLSN == 0 && i >= 0; i-- {
		if lastLSN, _, err = w.scanSegment(segments[i]); err != nil {
			return nil, fmt.Errorf("hypersparse: WAL: failed to scan segment %d: %w", segments[i], err)
		}
	}
	w.nextLSN.Store(lastLSN + 1)
	logger.Info("WAL opened read-only", "dir", w.dir, "segments", len(segments), "last_lsn", lastLSN)
	return w, nil
}

func truncateTail(path string, validSize int64, logger *slog.Logger) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("hypersparse: WAL: %w", err)
	}
	if info.Size() == validSize {
		return nil
	}
	logger.Warn("WAL: truncating torn tail",
		"path", path, "size", info.Size(), "valid", validSize)
	if err := os.Truncate(path, validSize); err != nil {
		return fmt.Errorf("hypersparse: WAL: truncate tail: %w", err)
	}
	return nil
}

// Append writes one entry and returns its LSN.
func (w *WAL) Append(op OpType, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("hypersparse: WAL is closed")
	}
	if w.readOnly {
		return 0, ErrReadOnly
	}

	lsn := w.nextLSN.Load()
	entry := WALEntry{
		LSN:       lsn,
		Timestamp: time.Now().UnixNano(),
		Op:        op,
		Payload:   payload,
	}
	entryData, err := msgpack.Marshal(&entry)
	if err != nil {
		return 0, fmt.Errorf("hypersparse: WAL: failed to marshal entry: %w", err)
	}

	frame := make([]byte, 4+len(entryData)+4)
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(entryData)))
	copy(frame[4:], entryData)
	binary.BigEndian.PutUint32(frame[4+len(entryData):], crc32.Checksum(entryData, crc32Table))

	if _, err := w.currentSeg.Write(frame); err != nil {
		return 0, fmt.Errorf("hypersparse: WAL: failed to write frame: %w", err)
	}
	w.nextLSN.Add(1)
	w.dirty.Store(true)
	w.currentSize += int64(len(frame))

	if w.currentSize >= walSegmentMaxSize {
		if err := w.rotateSegment(); err != nil {
			w.log.Error("WAL: segment rotation failed", "error", err)
		}
	}
	return lsn, nil
}

// LastLSN returns the last assigned LSN (0 if nothing was written).
func (w *WAL) LastLSN() uint64 {
	return w.nextLSN.Load() - 1
}

// Close flushes and closes the WAL.
func (w *WAL) Close() error {
	if w.stopCh != nil {
		close(w.stopCh)
		<-w.doneCh
		w.stopCh = nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.currentSeg != nil {
		if err := w.currentSeg.Sync(); err != nil {
			return err
		}
		return w.currentSeg.Close()
	}
	return nil
}

// syncLoop is the group commit goroutine. The mutex is held only to read
// the segment handle; the fsync itself runs unlocked so Append can proceed.
func (w *WAL) syncLoop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(walGroupCommitPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.mu.Lock()
			if w.dirty.Load() && w.currentSeg != nil && !w.closed {
				_ = w.currentSeg.Sync()
				w.dirty.Store(false)
			}
			w.mu.Unlock()
			return
		case <-ticker.C:
			if !w.dirty.CompareAndSwap(true, false) {
				continue
			}
			w.mu.Lock()
			seg := w.currentSeg
			closed := w.closed
			w.mu.Unlock()

			if seg != nil && !closed {
				if err := seg.Sync(); err != nil {
					// Rotation may have closed seg after syncing it.
					w.log.Debug("WAL: group commit fsync", "error", err)
				}
			}
		}
	}
}

// ---------------------------------------------------------------------------
// WAL Reader
// ---------------------------------------------------------------------------

// WALReader reads entries sequentially across segments.
type WALReader struct {
	wal      *WAL
	segments []uint64
	segIdx   int
	file     *os.File
	fromLSN  uint64
}

// NewReader returns a reader over entries with LSN >= fromLSN.
func (w *WAL) NewReader(fromLSN uint64) (*WALReader, error) {
	segments, err := w.listSegments()
	if err != nil {
		return nil, fmt.Errorf("hypersparse: WAL reader: failed to list segments: %w", err)
	}
	return &WALReader{wal: w, segments: segments, fromLSN: fromLSN}, nil
}

// Next returns the next entry, or io.EOF once every segment is consumed.
// A torn or corrupted frame ends its segment.
func (r *WALReader) Next() (*WALEntry, error) {
	for {
		if r.file == nil {
			if r.segIdx >= len(r.segments) {
				return nil, io.EOF
			}
			f, err := os.Open(r.wal.segmentPath(r.segments[r.segIdx]))
			if err != nil {
				return nil, fmt.Errorf("hypersparse: WAL reader: failed to open segment: %w", err)
			}
			r.file = f
		}

		entry, err := readFrame(r.file)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.wal.log.Warn("WAL reader: skipping rest of segment",
					"segment", r.segments[r.segIdx], "error", err)
			}
			r.file.Close()
			r.file = nil
			r.segIdx++
			continue
		}
		if entry.LSN < r.fromLSN {
			continue
		}
		return entry, nil
	}
}

// Close closes the reader's file handle.
func (r *WALReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

var errTornFrame = errors.New("torn frame")

// readFrame reads one frame. It returns io.EOF at a clean segment end and
// another error for a torn, corrupted or undecodable frame.
func readFrame(rd io.Reader) (*WALEntry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(rd, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errTornFrame
	}
	frameLen := binary.BigEndian.Uint32(lenBuf[:])

	buf := make([]byte, int(frameLen)+4)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return nil, errTornFrame
	}
	data := buf[:frameLen]
	if binary.BigEndian.Uint32(buf[frameLen:]) != crc32.Checksum(data, crc32Table) {
		return nil, fmt.Errorf("crc mismatch")
	}
	var entry WALEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ---------------------------------------------------------------------------
// Segment management
// ---------------------------------------------------------------------------

func (w *WAL) segmentPath(segN uint64) string {
	return filepath.Join(w.dir, fmt.Sprintf(walFilePattern, segN))
}

func (w *WAL) listSegments() ([]uint64, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segments []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		var segN uint64
		if _, err := fmt.Sscanf(e.Name(), walFilePattern, &segN); err == nil {
			segments = append(segments, segN)
		}
	}
	slices.Sort(segments)
	return segments, nil
}

// rotateSegment must be called with w.mu held.
func (w *WAL) rotateSegment() error {
	if w.currentSeg != nil {
		if err := w.currentSeg.Sync(); err != nil {
			return err
		}
		if err := w.currentSeg.Close(); err != nil {
			return err
		}
	}

	w.currentSegN++
	w.currentSize = 0

	f, err := os.OpenFile(w.segmentPath(w.currentSegN), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("hypersparse: WAL: failed to create new segment: %w", err)
	}
	w.currentSeg = f
	w.log.Info("WAL segment rotated", "segment", w.currentSegN)
	return nil
}

// scanSegment returns the highest LSN in a segment and the byte length of
// its valid prefix.
func (w *WAL) scanSegment(segN uint64) (uint64, int64, error) {
	f, err := os.Open(w.segmentPath(segN))
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var (
		lastLSN uint64
		valid   int64
	)
	for {
		entry, err := readFrame(f)
		if err != nil {
			break
		}
		lastLSN = max(lastLSN, entry.LSN)
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, 0, err
		}
		valid = pos
	}
	return lastLSN, valid, nil
}
