package store

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
	}{
		{"single value", []float32{0.5}},
		{"small vector", []float32{0.1, 0.2, 0.3, 0.4}},
		{"negative values", []float32{-1.5, 2.25, -0.001}},
		{"extreme finite", []float32{math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeEmbedding(EncodeEmbedding(tt.vec))
			require.NoError(t, err)
			require.Len(t, decoded, len(tt.vec))
			for i := range tt.vec {
				assert.InDelta(t, tt.vec[i], decoded[i], 1e-6*math.Abs(float64(tt.vec[i]))+1e-12)
			}
		})
	}
}

func TestEncodeWireLayout(t *testing.T) {
	b := EncodeEmbedding([]float32{0.1, 0.2, 0.3, 0.4})

	// 4 header bytes + 4 values x 4 bytes
	require.Len(t, b, 20)
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(b))
	assert.Equal(t, float32(0.1), math.Float32frombits(binary.LittleEndian.Uint32(b[4:])))
}

func TestEncodeEmptyVector(t *testing.T) {
	b := EncodeEmbedding(nil)
	require.Len(t, b, 4)

	// Empty is producible on write but invalid on read
	_, err := DecodeEmbedding(b)
	assert.ErrorIs(t, err, ErrDecodeZeroDimension)
}

func TestDecodeTooShort(t *testing.T) {
	for _, b := range [][]byte{nil, {}, {1}, {1, 2, 3}} {
		_, err := DecodeEmbedding(b)
		assert.ErrorIs(t, err, ErrDecodeTooShort)
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	b := EncodeEmbedding([]float32{1, 2, 3})

	_, err := DecodeEmbedding(b[:len(b)-1])
	assert.ErrorIs(t, err, ErrDecodeSizeMismatch)

	_, err = DecodeEmbedding(append(b, 0))
	assert.ErrorIs(t, err, ErrDecodeSizeMismatch)
}

func TestDecodeDimensionCap(t *testing.T) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(DefaultMaxDimensions+1))

	_, err := DecodeEmbedding(b)
	assert.ErrorIs(t, err, ErrDecodeDimensionTooBig)

	// A tighter custom cap applies too
	_, err = DecodeEmbeddingMax(EncodeEmbedding(make([]float32, 10)), 8)
	assert.ErrorIs(t, err, ErrDecodeDimensionTooBig)
}

func TestDecodeErrorsCarryCodes(t *testing.T) {
	_, err := DecodeEmbedding([]byte{1})
	assert.Equal(t, scripterrors.ErrCodeDecodeTooShort, scripterrors.GetCode(err))

	_, err = DecodeEmbedding(EncodeEmbedding(nil))
	assert.Equal(t, scripterrors.ErrCodeDecodeZeroDim, scripterrors.GetCode(err))

	b := EncodeEmbedding([]float32{1, 2})
	_, err = DecodeEmbedding(b[:len(b)-1])
	assert.Equal(t, scripterrors.ErrCodeDecodeSizeMismatch, scripterrors.GetCode(err))

	_, err = DecodeEmbeddingMax(EncodeEmbedding(make([]float32, 10)), 8)
	assert.Equal(t, scripterrors.ErrCodeDecodeDimTooLarge, scripterrors.GetCode(err))
}

func TestDecodeNonFiniteValues(t *testing.T) {
	vec := []float32{float32(math.Inf(1)), float32(math.Inf(-1)), float32(math.NaN())}

	decoded, err := DecodeEmbedding(EncodeEmbedding(vec))
	require.NoError(t, err)
	assert.True(t, math.IsInf(float64(decoded[0]), 1))
	assert.True(t, math.IsInf(float64(decoded[1]), -1))
	assert.True(t, math.IsNaN(float64(decoded[2])))
}
