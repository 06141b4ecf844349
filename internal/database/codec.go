package database

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// ErrInvalidEncoding is returned when stored embedding bytes cannot be decoded.
var ErrInvalidEncoding = errors.New("invalid embedding encoding")

// EncodeEmbedding serializes an embedding into the pgvector binary format
// (uint16 dim, uint16 reserved, dim big-endian float32s). Backends without a
// native vector type store these bytes verbatim.
func EncodeEmbedding(embedding []float32) ([]byte, error) {
	if len(embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if len(embedding) > 0xFFFF {
		return nil, fmt.Errorf("embedding has %d dimensions, max is %d", len(embedding), 0xFFFF)
	}
	buf, err := pgvector.NewVector(embedding).EncodeBinary(nil)
	if err != nil {
		return nil, fmt.Errorf("encoding embedding: %w", err)
	}
	return buf, nil
}

// DecodeEmbedding is the inverse of EncodeEmbedding. The round trip is exact.
func DecodeEmbedding(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidEncoding, len(data))
	}
	dim := int(binary.BigEndian.Uint16(data[0:2]))
	if dim == 0 || len(data) != 4+4*dim {
		return nil, fmt.Errorf("%w: %d bytes for %d dimensions", ErrInvalidEncoding, len(data), dim)
	}
	var vec pgvector.Vector
	if err := vec.DecodeBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return vec.Slice(), nil
}
