package rpc

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// Name is the gRPC content subtype of the msgpack codec. Clients select it
// with grpc.CallContentSubtype(Name); Dial does this by default.
const Name = "msgpack"

func init() {
	encoding.RegisterCodec(codec{})
}

// codec carries messages as msgpack, reusing the json struct tags of the
// graph's result types. Interfaces decode loosely so integers arrive as
// int64 or uint64 whatever their wire width.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

func (codec) Name() string { return Name }
