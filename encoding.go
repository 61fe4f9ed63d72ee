package hypersparse

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/vmihailenco/msgpack/v5"
)

// Key encoding helpers for bbolt.
// Integer keys are big-endian so cursor order matches numeric order.

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// propsMagicCRC marks msgpack-encoded props followed by a CRC32 trailer.
const propsMagicCRC byte = 0x02

// crc32Table is the Castagnoli table shared by props and WAL frames.
var crc32Table = crc32.MakeTable(crc32.Castagnoli)

// encodeProps serializes properties as magic(1) + msgpack + crc32(4).
func encodeProps(props Props) ([]byte, error) {
	if props == nil {
		props = make(Props)
	}
	raw, err := msgpack.Marshal(props)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1+len(raw)+4)
	buf[0] = propsMagicCRC
	copy(buf[1:], raw)
	checksum := crc32.Checksum(buf[:1+len(raw)], crc32Table)
	binary.BigEndian.PutUint32(buf[1+len(raw):], checksum)
	return buf, nil
}

// decodeProps verifies the checksum and decodes properties.
func decodeProps(data []byte) (Props, error) {
	if len(data) < 5 || data[0] != propsMagicCRC {
		return nil, fmt.Errorf("hypersparse: props data malformed (%d bytes)", len(data))
	}
	payload := data[:len(data)-4]
	stored := binary.BigEndian.Uint32(data[len(data)-4:])
	actual := crc32.Checksum(payload, crc32Table)
	if stored != actual {
		return nil, fmt.Errorf("hypersparse: props checksum mismatch (stored=%08x actual=%08x)", stored, actual)
	}
	var props Props
	if err := msgpack.Unmarshal(payload[1:], &props); err != nil {
		return nil, err
	}
	if props == nil {
		props = make(Props)
	}
	return props, nil
}
