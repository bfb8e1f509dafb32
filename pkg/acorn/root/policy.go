package root

import (
	"sync/atomic"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
)

// PolicyFunc decides whether an operation is permitted. Returning false
// denies it. PolicyFunc may also annotate ctx.Metadata for later roots.
type PolicyFunc func(b []byte, ctx *Context) (allow bool, reason string)

// PolicyRoot is a non-transforming root: it never changes the bytes, only
// inspects the operation and either permits, annotates, or denies it
// (spec §4.3). In strict mode a denial aborts the operation with
// acornerr.ErrPolicyDenied; in permissive mode the operation proceeds and
// only the denial counter is incremented.
type PolicyRoot struct {
	name     string
	sequence int
	check    PolicyFunc
	strict   bool

	denials atomic.Int64
	allowed atomic.Int64
}

// NewPolicyRoot builds a policy root (recommended sequence band: 10-99).
func NewPolicyRoot(sequence int, check PolicyFunc, strict bool) *PolicyRoot {
	return &PolicyRoot{name: "policy", sequence: sequence, check: check, strict: strict}
}

func (r *PolicyRoot) Name() string      { return r.name }
func (r *PolicyRoot) Sequence() int     { return r.sequence }
func (r *PolicyRoot) Signature() string { return "policy" }

func (r *PolicyRoot) evaluate(b []byte, ctx *Context) ([]byte, error) {
	allow, reason := r.check(b, ctx)
	if allow {
		r.allowed.Add(1)
		return b, nil
	}
	r.denials.Add(1)
	if ctx.Metadata != nil {
		ctx.Metadata["policy_denied_reason"] = reason
	}
	if r.strict {
		return nil, acornerr.ErrPolicyDenied
	}
	return b, nil
}

func (r *PolicyRoot) OnStash(b []byte, ctx *Context) ([]byte, error) { return r.evaluate(b, ctx) }
func (r *PolicyRoot) OnCrack(b []byte, ctx *Context) ([]byte, error) { return r.evaluate(b, ctx) }

// Stats returns (allowedCount, denialCount).
func (r *PolicyRoot) Stats() (allowed, denied int64) {
	return r.allowed.Load(), r.denials.Load()
}
