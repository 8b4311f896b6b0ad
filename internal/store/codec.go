package store

import (
	"encoding/binary"
	"math"
	"strconv"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

// Binary wire format for stored embeddings:
//
//	[4-byte LE u32 dimension][dimension x 4-byte LE f32]
//
// Encode accepts any vector, including empty ones (which serialize to
// just the zero header). Decode treats a zero dimension as corrupt:
// a durable store should never hold an empty embedding, so the
// asymmetry is intentional.
const (
	codecHeaderSize = 4

	// DefaultMaxDimensions caps the declared dimension on decode,
	// defending against corrupted length fields.
	DefaultMaxDimensions = 16384
)

// Structural decode errors. All of them indicate corrupt payloads and
// always surface to the caller; nothing is silently dropped. They match
// through errors.Is by code, so detailed instances below compare equal.
var (
	ErrDecodeTooShort        = scripterrors.New(scripterrors.ErrCodeDecodeTooShort, "embedding payload too short", nil)
	ErrDecodeZeroDimension   = scripterrors.New(scripterrors.ErrCodeDecodeZeroDim, "embedding payload declares zero dimension", nil)
	ErrDecodeDimensionTooBig = scripterrors.New(scripterrors.ErrCodeDecodeDimTooLarge, "embedding payload dimension exceeds maximum", nil)
	ErrDecodeSizeMismatch    = scripterrors.New(scripterrors.ErrCodeDecodeSizeMismatch, "embedding payload size mismatch", nil)
)

// EncodeEmbedding serializes a vector into the binary wire format.
// Non-finite values (Inf, NaN) pass through without special handling.
func EncodeEmbedding(vec []float32) []byte {
	b := make([]byte, codecHeaderSize+len(vec)*4)
	binary.LittleEndian.PutUint32(b, uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[codecHeaderSize+i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding deserializes a binary payload produced by
// EncodeEmbedding, enforcing DefaultMaxDimensions.
func DecodeEmbedding(b []byte) ([]float32, error) {
	return DecodeEmbeddingMax(b, DefaultMaxDimensions)
}

// DecodeEmbeddingMax deserializes a binary payload with a caller-chosen
// dimension cap.
func DecodeEmbeddingMax(b []byte, maxDim int) ([]float32, error) {
	if len(b) < codecHeaderSize {
		return nil, scripterrors.New(scripterrors.ErrCodeDecodeTooShort, "embedding payload too short", nil).
			WithDetail("bytes", strconv.Itoa(len(b)))
	}

	dim := binary.LittleEndian.Uint32(b)
	if dim == 0 {
		return nil, ErrDecodeZeroDimension
	}
	if maxDim > 0 && dim > uint32(maxDim) {
		return nil, scripterrors.New(scripterrors.ErrCodeDecodeDimTooLarge, "embedding payload dimension exceeds maximum", nil).
			WithDetail("dimension", strconv.Itoa(int(dim))).
			WithDetail("max", strconv.Itoa(maxDim))
	}

	payload := b[codecHeaderSize:]
	if len(payload) != int(dim)*4 {
		return nil, scripterrors.New(scripterrors.ErrCodeDecodeSizeMismatch, "embedding payload size mismatch", nil).
			WithDetail("dimension", strconv.Itoa(int(dim))).
			WithDetail("payload_bytes", strconv.Itoa(len(payload)))
	}

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return vec, nil
}
