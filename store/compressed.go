package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/agentloop/core"
)

// zstdMagic starts every zstd frame (RFC 8878).
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Compressed wraps a Store and zstd-compresses every value. Values that do
// not start with a zstd frame (written before compression was enabled) are
// returned as stored.
type Compressed struct {
	next core.Store
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

var _ core.Store = (*Compressed)(nil)

// NewCompressed wraps next. The encoder and decoder are reused across calls;
// both are safe for concurrent use via EncodeAll/DecodeAll.
func NewCompressed(next core.Store) (*Compressed, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &Compressed{next: next, enc: enc, dec: dec}, nil
}

// Get implements core.Store.
func (c *Compressed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := c.next.Get(ctx, key)
	if err != nil || !ok {
		return data, ok, err
	}
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, true, nil
	}

	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("zstd decompress %q: %w", key, err)
	}

	return out, true, nil
}

// Set implements core.Store.
func (c *Compressed) Set(ctx context.Context, key string, value []byte) error {
	return c.next.Set(ctx, key, c.enc.EncodeAll(value, nil))
}

// Close releases the decoder's background resources.
func (c *Compressed) Close() error {
	c.dec.Close()
	return c.enc.Close()
}
