package mpool

import "github.com/weiwenchen2022/mpool/connector"

// WaiterInfo is the read-only view of a queued waiter passed to a
// Selector. It carries nothing a Selector could use to mutate pool state.
type WaiterInfo[C any] struct {
	kind int
	ctx  connector.Context
}

// Kind returns the waiter's requested kind.
func (w WaiterInfo[C]) Kind() int { return w.kind }

// Context returns the waiter's submitter context.
func (w WaiterInfo[C]) Context() connector.Context { return w.ctx }

// SlotInfo is a read-only snapshot of one eligible slot passed to a
// Selector: state=AVAILABLE, used<concurrency, and of the waiter's kind.
type SlotInfo[C any] struct {
	id          uint64
	kind        int
	weight      int
	concurrency int
	used        int
	ctx         connector.Context
	conn        C
}

func (s SlotInfo[C]) Kind() int                  { return s.kind }
func (s SlotInfo[C]) Weight() int                { return s.weight }
func (s SlotInfo[C]) Concurrency() int           { return s.concurrency }
func (s SlotInfo[C]) Used() int                  { return s.used }
func (s SlotInfo[C]) Context() connector.Context { return s.ctx }
func (s SlotInfo[C]) Conn() C                    { return s.conn }

// Selector chooses, among the slots eligible for a waiter, which one
// should serve it. It must be a pure function of its arguments: it must
// not retain the snapshot, call back into the Pool, or otherwise have a
// side effect. Returning ok=false leaves the waiter queued; the pool may
// then open a new connection for it, subject to capacity.
//
// Replacing a Pool's Selector affects subsequent match-loop iterations
// only; it is never invoked concurrently with itself.
type Selector[C any] func(w WaiterInfo[C], eligible []SlotInfo[C]) (chosen SlotInfo[C], ok bool)

// defaultSelector implements the default tie-break policy: prefer a slot
// whose context is the waiter's own
// (after unwrapping duplicated contexts to their root), else a slot that
// shares the waiter's event-loop identity, else the first eligible slot in
// snapshot order.
func defaultSelector[C any](w WaiterInfo[C], eligible []SlotInfo[C]) (SlotInfo[C], bool) {
	var zero SlotInfo[C]
	if len(eligible) == 0 {
		return zero, false
	}

	root := connector.Root(w.ctx)
	for _, s := range eligible {
		if connector.Root(s.ctx) == root {
			return s, true
		}
	}

	if id, ok := eventLoopID(root); ok {
		for _, s := range eligible {
			if sid, ok := eventLoopID(connector.Root(s.ctx)); ok && sid == id {
				return s, true
			}
		}
	}

	return eligible[0], true
}

func eventLoopID(ctx connector.Context) (any, bool) {
	id, ok := ctx.(connector.EventLoopIdentifier)
	if !ok {
		return nil, false
	}
	return id.EventLoopID(), true
}
