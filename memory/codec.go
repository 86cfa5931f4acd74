package memory

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/hupe1980/agentloop/core"
)

// Codec encodes an agent's persisted event tail.
type Codec interface {
	Name() string
	Marshal(events []core.Event) ([]byte, error)
	Unmarshal(data []byte) ([]core.Event, error)
}

// JSONCodec stores events as a JSON array.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

// Name implements Codec.
func (JSONCodec) Name() string { return "json" }

// Marshal implements Codec.
func (JSONCodec) Marshal(events []core.Event) ([]byte, error) {
	return json.Marshal(events)
}

// Unmarshal implements Codec.
func (JSONCodec) Unmarshal(data []byte) ([]core.Event, error) {
	var events []core.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CBORCodec stores events as a CBOR array (RFC 8949), which is noticeably
// smaller than JSON for long tails.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec = (*CBORCodec)(nil)

// NewCBORCodec builds a codec with deterministic core encoding and RFC 3339
// timestamps.
func NewCBORCodec() (*CBORCodec, error) {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

// Name implements Codec.
func (*CBORCodec) Name() string { return "cbor" }

// Marshal implements Codec.
func (c *CBORCodec) Marshal(events []core.Event) ([]byte, error) {
	return c.enc.Marshal(events)
}

// Unmarshal implements Codec.
func (c *CBORCodec) Unmarshal(data []byte) ([]core.Event, error) {
	var events []core.Event
	if err := c.dec.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CodecByName resolves "json" (or empty) and "cbor".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown snapshot encoding %q", name)
	}
}
