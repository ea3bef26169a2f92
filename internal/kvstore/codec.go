package kvstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Payload headers. JSON values at or below minCompressSize, or that lz4 cannot
// shrink, are stored raw.
const (
	headerJSON = 'j'
	headerLZ4  = 'z'

	minCompressSize = 256
	lengthSize      = 4
)

var errCorruptPayload = errors.New("corrupt payload")

// Codec serializes values to JSON, optionally lz4 block compressed.
type Codec struct {
	Compress bool
}

// Marshal encodes v.
func (c Codec) Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	if c.Compress && len(raw) > minCompressSize {
		compressed := make([]byte, 1+lengthSize+lz4.CompressBlockBound(len(raw)))
		written, err := lz4.CompressBlock(raw, compressed[1+lengthSize:], nil)
		if err == nil && written > 0 && written < len(raw) {
			compressed[0] = headerLZ4
			binary.LittleEndian.PutUint32(compressed[1:], uint32(len(raw)))
			return compressed[:1+lengthSize+written], nil
		}
	}
	out := make([]byte, 0, len(raw)+1)
	out = append(out, headerJSON)
	return append(out, raw...), nil
}

// Unmarshal decodes data produced by Marshal into v.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return errCorruptPayload
	}
	raw := data[1:]
	switch data[0] {
	case headerJSON:
	case headerLZ4:
		if len(raw) < lengthSize {
			return errCorruptPayload
		}
		size := binary.LittleEndian.Uint32(raw)
		decoded := make([]byte, size)
		n, err := lz4.UncompressBlock(raw[lengthSize:], decoded)
		if err != nil {
			return fmt.Errorf("lz4 decode: %w", err)
		}
		if n != int(size) {
			return errCorruptPayload
		}
		raw = decoded
	default:
		return fmt.Errorf("%w: unknown header %q", errCorruptPayload, data[0])
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}
