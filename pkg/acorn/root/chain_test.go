package root

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// reverseRoot is a trivial test double that reverses bytes — its own
// inverse, so it exercises ascending/descending ordering without pulling
// in a real transform.
type reverseRoot struct {
	name     string
	sequence int
}

func (r *reverseRoot) Name() string      { return r.name }
func (r *reverseRoot) Sequence() int     { return r.sequence }
func (r *reverseRoot) Signature() string { return "reverse" }

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

func (r *reverseRoot) OnStash(b []byte, _ *Context) ([]byte, error) { return reverse(b), nil }
func (r *reverseRoot) OnCrack(b []byte, _ *Context) ([]byte, error) { return reverse(b), nil }

type prefixRoot struct {
	name     string
	sequence int
	prefix   byte
}

func (r *prefixRoot) Name() string      { return r.name }
func (r *prefixRoot) Sequence() int     { return r.sequence }
func (r *prefixRoot) Signature() string { return "prefix" }

func (r *prefixRoot) OnStash(b []byte, _ *Context) ([]byte, error) {
	return append([]byte{r.prefix}, b...), nil
}

func (r *prefixRoot) OnCrack(b []byte, _ *Context) ([]byte, error) {
	if len(b) == 0 || b[0] != r.prefix {
		return nil, errors.New("prefix root: bad prefix")
	}
	return b[1:], nil
}

func TestChainAddRootSortsBySequence(t *testing.T) {
	c := NewChain()
	c.AddRoot(&reverseRoot{name: "b", sequence: 200})
	c.AddRoot(&reverseRoot{name: "a", sequence: 100})

	roots := c.Roots()
	assert.Len(t, roots, 2)
	assert.Equal(t, "a", roots[0].Name())
	assert.Equal(t, "b", roots[1].Name())
}

func TestChainRemoveRoot(t *testing.T) {
	c := NewChain()
	c.AddRoot(&reverseRoot{name: "only", sequence: 1})
	c.RemoveRoot("only")
	assert.Empty(t, c.Roots())
}

func TestChainApplyStashApplyCrackRoundtrip(t *testing.T) {
	c := NewChain()
	c.AddRoot(&prefixRoot{name: "prefix", sequence: 10, prefix: 0xAB})
	c.AddRoot(&reverseRoot{name: "reverse", sequence: 20})

	ctx := NewContext(context.Background(), "doc-1", OpStash)
	original := []byte("hello world")

	stashed, err := c.ApplyStash(original, ctx)
	assert.NoError(t, err)
	assert.NotEqual(t, original, stashed)

	cracked, err := c.ApplyCrack(stashed, ctx)
	assert.NoError(t, err)
	assert.Equal(t, original, cracked)
}

func TestChainApplyCrackPropagatesError(t *testing.T) {
	c := NewChain()
	c.AddRoot(&prefixRoot{name: "prefix", sequence: 10, prefix: 0xAB})

	ctx := NewContext(context.Background(), "doc-1", OpCrack)
	_, err := c.ApplyCrack([]byte("not prefixed"), ctx)
	assert.Error(t, err)
}

func TestChainEmptyChainIsIdentity(t *testing.T) {
	c := NewChain()
	ctx := NewContext(context.Background(), "doc-1", OpStash)
	b := []byte("unchanged")

	out, err := c.ApplyStash(b, ctx)
	assert.NoError(t, err)
	assert.Equal(t, b, out)
}
