package root

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
)

func TestPolicyRootStrictModeDeniesAndAborts(t *testing.T) {
	deny := func(b []byte, ctx *Context) (bool, string) { return false, "blocked for test" }
	r := NewPolicyRoot(10, deny, true)

	ctx := NewContext(context.Background(), "doc-1", OpStash)
	_, err := r.OnStash([]byte("payload"), ctx)

	assert.ErrorIs(t, err, acornerr.ErrPolicyDenied)
	assert.Equal(t, "blocked for test", ctx.Metadata["policy_denied_reason"])

	allowed, denied := r.Stats()
	assert.Equal(t, int64(0), allowed)
	assert.Equal(t, int64(1), denied)
}

func TestPolicyRootPermissiveModeDeniesButProceeds(t *testing.T) {
	deny := func(b []byte, ctx *Context) (bool, string) { return false, "blocked for test" }
	r := NewPolicyRoot(10, deny, false)

	ctx := NewContext(context.Background(), "doc-1", OpStash)
	out, err := r.OnStash([]byte("payload"), ctx)

	assert.NoError(t, err)
	assert.Equal(t, []byte("payload"), out)

	allowed, denied := r.Stats()
	assert.Equal(t, int64(0), allowed)
	assert.Equal(t, int64(1), denied)
}

func TestPolicyRootAllows(t *testing.T) {
	allow := func(b []byte, ctx *Context) (bool, string) { return true, "" }
	r := NewPolicyRoot(10, allow, true)

	ctx := NewContext(context.Background(), "doc-1", OpCrack)
	out, err := r.OnCrack([]byte("payload"), ctx)

	assert.NoError(t, err)
	assert.Equal(t, []byte("payload"), out)

	allowed, denied := r.Stats()
	assert.Equal(t, int64(1), allowed)
	assert.Equal(t, int64(0), denied)
}

func TestPolicyRootNeverTransformsBytes(t *testing.T) {
	allow := func(b []byte, ctx *Context) (bool, string) { return true, "" }
	r := NewPolicyRoot(10, allow, true)

	ctx := NewContext(context.Background(), "doc-1", OpStash)
	input := []byte("same bytes in and out")
	out, err := r.OnStash(input, ctx)

	assert.NoError(t, err)
	assert.Equal(t, input, out)
}
