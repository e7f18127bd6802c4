// Package opgraph serializes planned ops into a dependency DAG so the
// executor can always ask for "the next op that is safe to run right now":
// at most one op checked out per affected node at a time, parent/child
// dependencies preserved, and two-sided ops (CP, MV, ...) only becoming
// ready once both their source and destination graph nodes are at the front
// of their respective queues.
package opgraph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/planner"
)

// ErrRMBlockedByNonRM is returned when a new RM op targets a node that has
// a pending child-node op of any non-RM type — the batch is rejected.
var ErrRMBlockedByNonRM = errors.New("opgraph: cannot remove a node with non-RM ops pending on its descendants")

// Side tags which half of a two-sided op a graph node represents.
type Side int

const (
	SideNone Side = iota
	SideSrc
	SideDst
)

// target identifies one (device_uid, node_uid) queue.
type target struct {
	deviceUID node.DeviceUID
	uid       node.UID
}

// gnode is one graph node: either the sole node for a single-sided op (RM)
// or one of the two linked nodes for a two-sided op.
type gnode struct {
	op       *planner.Op
	side     Side
	target   target
	sibling  *gnode // the other side of a two-sided op, nil for RM
	parents  map[*gnode]struct{}
	children map[*gnode]struct{}
	checkedOut bool
}

// ChildrenLookup resolves the direct children of (deviceUID, uid) against
// the live tree-stores, so the graph can check the RM insertion rule ("all
// existing op-graph nodes targeting a child of T must be RM type") against
// the node's actual children rather than only what already has ops queued.
type ChildrenLookup func(deviceUID node.DeviceUID, uid node.UID) []node.Node

// Graph is the process-wide op dependency graph. One Graph per executor.
type Graph struct {
	mu sync.Mutex
	cv *sync.Cond

	queues  map[target][]*gnode
	roots   map[*gnode]struct{} // children of the sentinel root
	byOpUID map[uint64][]*gnode

	lookup ChildrenLookup

	shutdown bool
}

// New constructs an empty Graph. lookup may be nil in tests that never
// exercise directory removals with live descendants.
func New(lookup ChildrenLookup) *Graph {
	g := &Graph{
		queues:  make(map[target][]*gnode),
		roots:   make(map[*gnode]struct{}),
		byOpUID: make(map[uint64][]*gnode),
		lookup:  lookup,
	}
	g.cv = sync.NewCond(&g.mu)

	return g
}

// EnqueueResult reports which ops a batch insertion actually added to the
// graph (duplicates, like a repeated RM, are silently discarded).
type EnqueueResult struct {
	Inserted  []*planner.Op
	Discarded []*planner.Op
}

// EnqueueBatch inserts every op in ops, in order, applying the enqueue-one
// algorithm to each. Returns the ops actually inserted vs. discarded as
// duplicates. A structural violation (RM blocked by a non-RM descendant)
// aborts the whole batch and enqueues nothing.
func (g *Graph) EnqueueBatch(ops []*planner.Op) (EnqueueResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Check every RM in the batch against the current graph before
	// mutating anything, so a rejection never leaves the graph half
	// updated.
	for _, op := range ops {
		if op.Type == planner.OpRM && g.hasNonRMDescendantLocked(op.SrcNode) {
			return EnqueueResult{}, fmt.Errorf("%w: op_uid=%d", ErrRMBlockedByNonRM, op.OpUID)
		}
	}

	var result EnqueueResult

	for _, op := range ops {
		inserted, discarded := g.enqueueOneLocked(op)
		if discarded {
			result.Discarded = append(result.Discarded, op)
		} else if inserted {
			result.Inserted = append(result.Inserted, op)
		}
	}

	g.cv.Broadcast()

	return result, nil
}

// hasNonRMDescendantLocked reports whether any direct child of src currently
// has a non-RM op at the back of its queue — the RM insertion rule requires
// every such op-graph node to be RM type before T itself can be removed.
func (g *Graph) hasNonRMDescendantLocked(src node.Node) bool {
	if g.lookup == nil {
		return false
	}

	for _, child := range g.lookup(src.GetDeviceUID(), src.GetUID()) {
		t := target{deviceUID: child.GetDeviceUID(), uid: child.GetUID()}

		q := g.queues[t]
		if len(q) == 0 {
			continue
		}

		if q[len(q)-1].op.Type != planner.OpRM {
			return true
		}
	}

	return false
}

// enqueueOneLocked inserts a single op into the graph, assuming g.mu is
// held. Returns (inserted, discarded).
func (g *Graph) enqueueOneLocked(op *planner.Op) (bool, bool) {
	if op.Type == planner.OpRM {
		return g.enqueueRMLocked(op), false
	}

	g.enqueueNonRMLocked(op)

	return true, false
}

func (g *Graph) enqueueRMLocked(op *planner.Op) bool {
	t := target{deviceUID: op.SrcNode.GetDeviceUID(), uid: op.SrcNode.GetUID()}
	q := g.queues[t]

	if len(q) > 0 {
		last := q[len(q)-1]

		if last.op.Type == planner.OpRM {
			return false // duplicate RM, discarded
		}
	}

	n := &gnode{op: op, side: SideNone, target: t, parents: map[*gnode]struct{}{}, children: map[*gnode]struct{}{}}

	if len(q) > 0 {
		g.attachLocked(q[len(q)-1], n)
	} else {
		g.attachToRootLocked(n)
	}

	for _, parentUID := range op.SrcNode.GetParentUIDs() {
		pt := target{deviceUID: op.SrcNode.GetDeviceUID(), uid: parentUID}

		if pq := g.queues[pt]; len(pq) > 0 {
			lastP := pq[len(pq)-1]
			if lastP.op.Type == planner.OpRM {
				g.attachLocked(n, lastP)
			}
		}
	}

	g.queues[t] = append(g.queues[t], n)
	g.byOpUID[op.OpUID] = append(g.byOpUID[op.OpUID], n)

	return true
}

func (g *Graph) enqueueNonRMLocked(op *planner.Op) {
	nodes := g.buildSidesLocked(op)

	for _, n := range nodes {
		q := g.queues[n.target]

		var lastT *gnode
		if len(q) > 0 {
			lastT = q[len(q)-1]
		}

		attached := false

		for _, parentUID := range sideParentUIDs(n) {
			pt := target{deviceUID: n.target.deviceUID, uid: parentUID}
			pq := g.queues[pt]

			var lastP *gnode
			if len(pq) > 0 {
				lastP = pq[len(pq)-1]
			}

			switch {
			case lastT != nil && lastP != nil:
				if depthLocked(lastT) >= depthLocked(lastP) {
					g.attachLocked(lastT, n)
				} else {
					g.attachLocked(lastP, n)
				}
				attached = true
			case lastP != nil:
				g.attachLocked(lastP, n)
				attached = true
			}
		}

		if !attached {
			if lastT != nil {
				g.attachLocked(lastT, n)
			} else {
				g.attachToRootLocked(n)
			}
		}

		g.queues[n.target] = append(g.queues[n.target], n)
		g.byOpUID[op.OpUID] = append(g.byOpUID[op.OpUID], n)
	}
}

// buildSidesLocked builds one or two gnodes for op: an RM never reaches
// here; a dst-less op (shouldn't occur for non-RM types, but handled
// defensively) yields a single src-side node.
func (g *Graph) buildSidesLocked(op *planner.Op) []*gnode {
	src := &gnode{
		op: op, side: SideSrc,
		target:   target{deviceUID: op.SrcNode.GetDeviceUID(), uid: op.SrcNode.GetUID()},
		parents:  map[*gnode]struct{}{},
		children: map[*gnode]struct{}{},
	}

	if op.DstNode == nil {
		return []*gnode{src}
	}

	dst := &gnode{
		op: op, side: SideDst,
		target:   target{deviceUID: op.DstNode.GetDeviceUID(), uid: op.DstNode.GetUID()},
		parents:  map[*gnode]struct{}{},
		children: map[*gnode]struct{}{},
	}

	src.sibling = dst
	dst.sibling = src

	return []*gnode{src, dst}
}

func sideParentUIDs(n *gnode) []node.UID {
	if n.side == SideDst {
		return n.op.DstNode.GetParentUIDs()
	}

	return n.op.SrcNode.GetParentUIDs()
}

func (g *Graph) attachLocked(parent, child *gnode) {
	parent.children[child] = struct{}{}
	child.parents[parent] = struct{}{}
	delete(g.roots, child)
}

func (g *Graph) attachToRootLocked(n *gnode) {
	g.roots[n] = struct{}{}
}

func depthLocked(n *gnode) int {
	depth := 0
	cur := n

	for {
		var next *gnode
		for p := range cur.parents {
			next = p
			break
		}

		if next == nil {
			return depth
		}

		cur = next
		depth++
	}
}

// TryGet scans the ready set (graph nodes that are direct children of root,
// every side of whose op is also a root child, and which are not already
// checked out) and returns the first ready op found, marking it checked
// out. The ready set is a map, so when several ops are ready the one
// returned is not defined by insertion order. Returns nil if nothing is
// ready.
func (g *Graph) TryGet() *planner.Op {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.tryGetLocked()
}

func (g *Graph) tryGetLocked() *planner.Op {
	for n := range g.roots {
		if n.checkedOut {
			continue
		}

		if n.sibling != nil {
			if _, ok := g.roots[n.sibling]; !ok {
				continue
			}

			if n.sibling.checkedOut {
				continue
			}
		}

		n.checkedOut = true
		if n.sibling != nil {
			n.sibling.checkedOut = true
		}

		return n.op
	}

	return nil
}

// GetNextOp blocks until TryGet would return non-nil, or ctx is cancelled,
// or the graph is shut down.
func (g *Graph) GetNextOp(ctx context.Context) (*planner.Op, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		if op := g.tryGetLocked(); op != nil {
			return op, nil
		}

		if g.shutdown {
			return nil, context.Canceled
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		waitCh := make(chan struct{})

		go func() {
			g.mu.Lock()
			g.cv.Wait()
			g.mu.Unlock()
			close(waitCh)
		}()

		g.mu.Unlock()

		select {
		case <-waitCh:
		case <-ctx.Done():
			g.mu.Lock()
			g.cv.Broadcast()
			return nil, ctx.Err()
		}

		g.mu.Lock()
	}
}

// Pop removes a checked-out op's graph nodes from every queue, promoting
// newly-unblocked children to root, and wakes any blocked GetNextOp
// callers.
func (g *Graph) Pop(op *planner.Op) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, n := range g.byOpUID[op.OpUID] {
		g.popOneLocked(n)
	}

	delete(g.byOpUID, op.OpUID)
	g.cv.Broadcast()
}

func (g *Graph) popOneLocked(n *gnode) {
	q := g.queues[n.target]
	if len(q) > 0 && q[0] == n {
		g.queues[n.target] = q[1:]
	}

	delete(g.roots, n)

	for child := range n.children {
		delete(child.parents, n)

		if len(child.parents) == 0 {
			g.attachToRootLocked(child)
		}
	}
}

// DebugString dumps every (device_uid, node_uid) queue in the graph, one
// line per queue, ops in front-to-back order, each tagged by op.String().
// Not load-bearing — used only by tests and --debug CLI output.
func (g *Graph) DebugString() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	targets := make([]target, 0, len(g.queues))
	for t := range g.queues {
		targets = append(targets, t)
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].deviceUID != targets[j].deviceUID {
			return targets[i].deviceUID < targets[j].deviceUID
		}

		return targets[i].uid < targets[j].uid
	})

	var b strings.Builder

	for _, t := range targets {
		q := g.queues[t]
		if len(q) == 0 {
			continue
		}

		fmt.Fprintf(&b, "device=%d uid=%d:", t.deviceUID, t.uid)

		for _, n := range q {
			checkedOut := ""
			if n.checkedOut {
				checkedOut = "*"
			}

			fmt.Fprintf(&b, " %s%s", n.op.String(), checkedOut)
		}

		b.WriteByte('\n')
	}

	return b.String()
}

// Shutdown wakes every blocked GetNextOp caller with context.Canceled.
func (g *Graph) Shutdown() {
	g.mu.Lock()
	g.shutdown = true
	g.mu.Unlock()
	g.cv.Broadcast()
}
