package root

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
)

// CompressionRoot wraps klauspost/compress's gzip implementation — a
// drop-in, faster replacement for stdlib compress/gzip already present in
// the retrieval pack's dependency graph. OnStash compresses, OnCrack
// decompresses.
type CompressionRoot struct {
	name     string
	sequence int
	level    int

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
	errors   atomic.Int64
}

// NewCompressionRoot builds a compression root at the given sequence
// number (recommended band: 100-199) using gzip level `level`
// (gzip.DefaultCompression if 0).
func NewCompressionRoot(sequence, level int) *CompressionRoot {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &CompressionRoot{name: "compression", sequence: sequence, level: level}
}

func (r *CompressionRoot) Name() string     { return r.name }
func (r *CompressionRoot) Sequence() int    { return r.sequence }
func (r *CompressionRoot) Signature() string {
	return fmt.Sprintf("gzip/%d", r.level)
}

func (r *CompressionRoot) OnStash(b []byte, _ *Context) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, r.level)
	if err != nil {
		r.errors.Add(1)
		return nil, fmt.Errorf("compression root: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		r.errors.Add(1)
		return nil, fmt.Errorf("compression root: %w", err)
	}
	if err := w.Close(); err != nil {
		r.errors.Add(1)
		return nil, fmt.Errorf("compression root: %w", err)
	}
	r.bytesIn.Add(int64(len(b)))
	r.bytesOut.Add(int64(buf.Len()))
	return buf.Bytes(), nil
}

func (r *CompressionRoot) OnCrack(b []byte, _ *Context) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		r.errors.Add(1)
		return nil, fmt.Errorf("compression root: %w", err)
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		r.errors.Add(1)
		return nil, fmt.Errorf("compression root: %w", err)
	}
	return out, nil
}

// Stats returns (bytesIn, bytesOut, ratio, errorCount). Ratio is
// bytesOut/bytesIn for the life of the root (0 before any write).
func (r *CompressionRoot) Stats() (bytesIn, bytesOut int64, ratio float64, errs int64) {
	in := r.bytesIn.Load()
	out := r.bytesOut.Load()
	if in > 0 {
		ratio = float64(out) / float64(in)
	}
	return in, out, ratio, r.errors.Load()
}
