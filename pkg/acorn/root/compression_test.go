package root

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompressionRootRoundtrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "short text", data: []byte("hello world")},
		{name: "repetitive data compresses well", data: []byte(
			"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")},
		{name: "empty input", data: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCompressionRoot(100, 0)
			ctx := NewContext(context.Background(), "doc-1", OpStash)

			compressed, err := r.OnStash(tt.data, ctx)
			assert.NoError(t, err)

			decompressed, err := r.OnCrack(compressed, ctx)
			assert.NoError(t, err)
			assert.Equal(t, tt.data, decompressed)
		})
	}
}

func TestCompressionRootStatsAccumulate(t *testing.T) {
	r := NewCompressionRoot(100, 0)
	ctx := NewContext(context.Background(), "doc-1", OpStash)

	data := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	_, err := r.OnStash(data, ctx)
	assert.NoError(t, err)

	bytesIn, bytesOut, ratio, errs := r.Stats()
	assert.Equal(t, int64(len(data)), bytesIn)
	assert.Greater(t, bytesOut, int64(0))
	assert.Greater(t, ratio, float64(0))
	assert.Equal(t, int64(0), errs)
}

func TestCompressionRootOnCrackRejectsGarbage(t *testing.T) {
	r := NewCompressionRoot(100, 0)
	ctx := NewContext(context.Background(), "doc-1", OpCrack)

	_, err := r.OnCrack([]byte("not gzip data"), ctx)
	assert.Error(t, err)

	_, _, _, errs := r.Stats()
	assert.Equal(t, int64(1), errs)
}

func TestCompressionRootNameSequenceSignature(t *testing.T) {
	r := NewCompressionRoot(150, 6)
	assert.Equal(t, "compression", r.Name())
	assert.Equal(t, 150, r.Sequence())
	assert.Equal(t, "gzip/6", r.Signature())
}
