package packet

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec is the contract the real, spec-mandated wire codec must satisfy.
// spec.md §1 places codec implementation out of scope; this interface is
// what internal/transport programs against. internal/adjacency,
// internal/flooding, and internal/node use only the packet types.
type Codec interface {
	Encode(ProtocolPacket) ([]byte, error)
	Decode([]byte) (ProtocolPacket, error)
}

func init() {
	gob.Register(LIEPacket{})
	gob.Register(TIEPacket{})
	gob.Register(TIDEPacket{})
	gob.Register(TIREPacket{})
	gob.Register(NodeElement{})
	gob.Register(PrefixElement{})
	gob.Register(PositiveDisaggElement{})
	gob.Register(NegativeDisaggElement{})
	gob.Register(PolicyGuidedElement{})
	gob.Register(KeyValueElement{})
}

// GobCodec is a minimal stand-in Codec implementation using encoding/gob,
// so the event loop and tests have something concrete to call. It is
// explicitly not the spec-mandated wire format — spec.md does not define
// one — and exists only because Codec is a contract with no in-scope
// implementation (SPEC_FULL.md §B.2).
type GobCodec struct{}

func NewGobCodec() *GobCodec { return &GobCodec{} }

func (GobCodec) Encode(p ProtocolPacket) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&p); err != nil {
		return nil, fmt.Errorf("encode packet: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(data []byte) (ProtocolPacket, error) {
	var p ProtocolPacket
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return ProtocolPacket{}, fmt.Errorf("decode packet: %w", err)
	}
	return p, nil
}
