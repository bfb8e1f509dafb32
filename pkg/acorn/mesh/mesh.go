/*
Package mesh implements the coordinator that owns a set of named trees
and the undirected topology connecting them (spec §4.5 Mesh
Coordinator): topology builders (connectNodes, createFullMesh,
createRing, createStar) and synchronizeAll, which drives every edge's
Shake in both directions concurrently.
*/
package mesh

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/acorndb/acorndb/pkg/acorn/branch"
)

// edge is an unordered pair of node ids, used to dedup topology builders
// so connectNodes(a, b) run twice never double-wires.
type edge struct{ a, b string }

func normalize(a, b string) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

// Coordinator owns nodeId -> Tree and the topology graph connecting
// them. T is the payload type shared by every tree in the mesh — a
// mesh, like a single tree, is type-parameterized at compile time
// rather than dispatching on a runtime schema.
type Coordinator[T any] struct {
	mu    sync.RWMutex
	trees map[string]*treeHandle[T]
	edges map[edge]struct{}
}

// treeHandle pairs a tree with the branches the coordinator created for
// it, so synchronizeAll can walk edges without re-deriving them from
// each tree's internal branch set.
type treeHandle[T any] struct {
	tree     branch.PushTarget[T]
	registrar func(branch.Branch[T])
	branches map[string]branch.Branch[T]
}

// New creates an empty coordinator.
func New[T any]() *Coordinator[T] {
	return &Coordinator[T]{
		trees: make(map[string]*treeHandle[T]),
		edges: make(map[edge]struct{}),
	}
}

// Register adds a tree to the mesh under its own id. registrar is called
// with every in-process branch the coordinator creates for this tree, so
// it can be wired into the tree's real outbound branch set without the
// mesh package depending on package tree (tree.Branch is satisfied
// structurally by the branches created here).
func (c *Coordinator[T]) Register(t branch.PushTarget[T], registrar func(branch.Branch[T])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees[t.ID()] = &treeHandle[T]{tree: t, registrar: registrar, branches: make(map[string]branch.Branch[T])}
}

// ConnectNodes creates in-process branches in both directions between a
// and b (spec §4.5 connectNodes).
func (c *Coordinator[T]) ConnectNodes(a, b string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(a, b)
}

func (c *Coordinator[T]) connectLocked(a, b string) error {
	e := normalize(a, b)
	if _, exists := c.edges[e]; exists {
		return nil
	}
	ha, ok := c.trees[a]
	if !ok {
		return fmt.Errorf("mesh: unknown node %q", a)
	}
	hb, ok := c.trees[b]
	if !ok {
		return fmt.Errorf("mesh: unknown node %q", b)
	}

	ab := branch.NewInProcess[T](hb.tree, branch.ModeBidirectional)
	ba := branch.NewInProcess[T](ha.tree, branch.ModeBidirectional)
	ha.branches[b] = ab
	hb.branches[a] = ba
	ha.registrar(ab)
	hb.registrar(ba)
	c.edges[e] = struct{}{}
	return nil
}

// CreateFullMesh pairwise connects every registered node.
func (c *Coordinator[T]) CreateFullMesh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.nodeIDsLocked()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if err := c.connectLocked(ids[i], ids[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateRing connects each node to the next, closing the loop.
func (c *Coordinator[T]) CreateRing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.nodeIDsLocked()
	if len(ids) < 2 {
		return nil
	}
	for i := range ids {
		next := ids[(i+1)%len(ids)]
		if err := c.connectLocked(ids[i], next); err != nil {
			return err
		}
	}
	return nil
}

// CreateStar connects hub to every other registered node.
func (c *Coordinator[T]) CreateStar(hub string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.nodeIDsLocked() {
		if id == hub {
			continue
		}
		if err := c.connectLocked(hub, id); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator[T]) nodeIDsLocked() []string {
	ids := make([]string, 0, len(c.trees))
	for id := range c.trees {
		ids = append(ids, id)
	}
	return ids
}

// SynchronizeAll invokes Shake in both directions for every edge,
// concurrently, stopping at the first error (spec §4.5 synchronizeAll).
func (c *Coordinator[T]) SynchronizeAll(ctx context.Context) error {
	c.mu.RLock()
	type job struct {
		local  branch.SquabbleTarget[T]
		b      branch.Branch[T]
	}
	var jobs []job
	for _, h := range c.trees {
		for _, b := range h.branches {
			jobs = append(jobs, job{local: h.tree, b: b})
		}
	}
	c.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			return j.b.Shake(gctx, j.local)
		})
	}
	return g.Wait()
}
