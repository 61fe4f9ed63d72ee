package hypersparse

import (
	"github.com/vmihailenco/msgpack/v5"
)

// OpType identifies the kind of edge recorded in a WAL entry.
type OpType uint8

const (
	OpInsertAdjacency OpType = iota + 1 // one cell of an adjacency matrix
	OpInsertIncidence                   // one incidence edge (both matrices)
)

func (op OpType) String() string {
	switch op {
	case OpInsertAdjacency:
		return "InsertAdjacency"
	case OpInsertIncidence:
		return "InsertIncidence"
	default:
		return "Unknown"
	}
}

// WALEntry is one applied edge. LSNs increase monotonically across the whole
// log.
type WALEntry struct {
	LSN       uint64 `msgpack:"lsn"`
	Timestamp int64  `msgpack:"ts"`
	Op        OpType `msgpack:"op"`
	Payload   []byte `msgpack:"payload"`
}

// Payloads carry resolved ids only, so replay never touches the catalog
// allocator. Weights are stored in PortableWeight form and re-coerced by
// the relation's WeightType on replay.

// walAdjacency is the payload for OpInsertAdjacency.
type walAdjacency struct {
	Relation    RelationID `msgpack:"rel"`
	Source      NodeID     `msgpack:"src"`
	Destination NodeID     `msgpack:"dst"`
	Weight      any        `msgpack:"w"`
}

// walIncidence is the payload for OpInsertIncidence.
type walIncidence struct {
	Relation           RelationID `msgpack:"rel"`
	Edge               EdgeID     `msgpack:"edge"`
	Sources            []NodeID   `msgpack:"srcs"`
	Destinations       []NodeID   `msgpack:"dsts"`
	SourceWeights      []any      `msgpack:"sw"`
	DestinationWeights []any      `msgpack:"dw"`
}

func encodeWALPayload(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func decodeWALPayload(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
