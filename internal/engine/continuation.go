package engine

// continuation records where one run currently is inside a single
// descriptor node. It is the suspended-execution state the engine keeps
// instead of capturing closures: a parent back-pointer, a shared
// read-only descriptor reference and two small counters.
//
// Ownership: the chain is owned exclusively by the Run; parents are
// reached only via back-pointers, never enumerated from outside.
//
// Invariant: an If/While/Repeat node's active child continuation always
// references a child listed in its descriptor (children are pushed only
// from the descriptor's own slices), and a node signals completion to
// its parent exactly once (guarded by done).
type continuation struct {
	parent *continuation
	desc   *Descriptor

	// child is the index of the next child to start. For While and
	// Repeat it is the position within the current iteration's body;
	// zero marks an iteration boundary.
	child int

	// iter counts completed iterations for While/Repeat.
	iter int

	// bound is the Repeat count, captured once when the node starts so
	// argument-dependent counts are stable across suspensions.
	bound int

	// branch is the If branch chosen on entry.
	branch []*Descriptor

	// entered marks one-time entry work (condition evaluation for If,
	// count capture for Repeat, deadline computation for Delay) as done.
	entered bool

	// done guards against double completion signalling.
	done bool
}

// push makes desc the run's current node, linking back to the previous
// current node as parent.
func (r *Run) push(desc *Descriptor) {
	r.current = &continuation{parent: r.current, desc: desc}
}

// pop signals completion of the current node and returns control to its
// parent. Completion is idempotent: a second signal for the same node is
// a programming bug and is logged and dropped rather than corrupting the
// parent's position.
func (r *Run) pop() {
	c := r.current
	if c == nil {
		return
	}
	if c.done {
		r.eng.logger.Error("duplicate completion signal dropped",
			"run_id", r.id,
			"node", c.desc.Kind.String(),
			"label", c.desc.Label,
		)
		return
	}
	c.done = true
	r.current = c.parent
}
