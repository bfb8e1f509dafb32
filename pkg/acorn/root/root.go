/*
Package root implements the trunk's byte-level transform pipeline: an
ordered chain of named, sequenced Root transforms applied between the
envelope serializer and the trunk's storage medium (spec §4.3).

Roots are applied ascending by Sequence on write and descending on read,
so that, for any well-behaved Root, decoding what was just encoded is a
no-op round trip. Recommended sequence bands (spec §4.3): 10-99
policy/validation, 100-199 compression, 200-299 encryption, 300-399
integrity/checksum, 400-499 signatures.
*/
package root

import "context"

// Operation identifies which trunk operation is driving a root's
// invocation. Roots that only care about one direction can ignore it;
// policy roots use it to apply different rules to reads vs writes.
type Operation string

const (
	OpStash Operation = "stash"
	OpCrack Operation = "crack"
	OpToss  Operation = "toss"
)

// Context carries per-call state through the chain: the id the bytes
// belong to, which operation triggered the chain, and a mutable metadata
// map roots can use to pass decisions to later roots (e.g. a policy root
// annotating "compressed=true" for an audit root further down the chain).
type Context struct {
	ID        string
	Op        Operation
	Metadata  map[string]any
	Ctx       context.Context
}

// NewContext builds a Context with an initialized Metadata map.
func NewContext(ctx context.Context, id string, op Operation) *Context {
	return &Context{ID: id, Op: op, Metadata: make(map[string]any), Ctx: ctx}
}

// Root is a byte-level transform in the trunk's pipeline. Implementations
// must satisfy: OnCrack(OnStash(b)) == b for any b that did not trigger a
// policy denial.
type Root interface {
	// Name is a stable identifier, used in logs and metrics labels.
	Name() string
	// Sequence determines ascending (write) / descending (read) order.
	Sequence() int
	// Signature identifies the transform's algorithm/parameters, e.g.
	// "gzip/6" or "aes-256-gcm". Used for diagnostics, not correctness.
	Signature() string
	// OnStash transforms bytes on the way into the trunk.
	OnStash(b []byte, ctx *Context) ([]byte, error)
	// OnCrack transforms bytes on the way out of the trunk; must be the
	// inverse of OnStash.
	OnCrack(b []byte, ctx *Context) ([]byte, error)
}
