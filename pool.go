// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpool

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/weiwenchen2022/mpool/connector"
)

// errRemovedWhileConnecting is the cause reported to a waiter bound to a
// slot that the connector marked removed before its connect attempt
// completed.
var errRemovedWhileConnecting = errors.New("mpool: connection removed before connect completed")

// provisionalWeight is the capacity a CONNECTING slot reserves against its
// kind's budget before the connector has reported the connection's actual
// weight. It is trued up to the reported weight on connect success; until
// then every in-flight connect, regardless of eventual weight, costs
// exactly this much of the budget.
const provisionalWeight = 1

// arenaCell is one slot of the Pool's arena. A cell with a nil slot is
// free for reuse; gen is bumped every time the cell's occupant is
// discarded, so a Lease built against an old occupant can never be
// mistaken for one against whatever the cell holds now.
type arenaCell[C any] struct {
	slot *slot[C]
	gen  uint64
}

// CloseResult is one entry of the list Close hands its sink: one per slot
// that existed when Close began, in a deterministic order: available slots
// first, in arena order, followed by in-flight connects as they resolve.
type CloseResult[C any] struct {
	Conn C
	Err  error
}

// postAction is a user-visible callback deferred by a mutation until
// outside the critical section, tagged with the context it must run on.
type postAction struct {
	ctx connector.Context
	fn  func()
}

// Pool multiplexes a bounded set of connections, each potentially serving
// more than one caller at a time, across many asynchronous waiters. See
// the package doc for an overview; it is safe for concurrent use by
// multiple goroutines.
type Pool[C any] struct {
	connector  connector.Connector[C]
	maxPerKind []int
	maxWaiters int

	mu       sync.Mutex
	selector Selector[C]
	limiter  RateLimiter
	closed   bool

	arena     []arenaCell[C]
	freeCells []int
	idle      *list.List // of *slot[C], used==0 AVAILABLE slots, oldest-recycled-first
	weight    []int      // live (incl. provisional CONNECTING) weight sum per kind
	requests  int        // count of CONNECTING slots

	queue *list.List // of *waiter[C]

	closeSink    func([]CloseResult[C], error)
	closeCtx     connector.Context
	closeResults []CloseResult[C]
	closePending int

	post     []postAction
	draining bool
}

// NewPool returns a Pool that dials through c, with maxPerKind[k] the
// maximum total weight of live slots of kind k. The waiter queue is capped
// at the sum of maxPerKind; use NewPoolWaiters to set it explicitly.
func NewPool[C any](c connector.Connector[C], maxPerKind []int) *Pool[C] {
	return newPool(c, maxPerKind, -1)
}

// NewPoolWaiters is like NewPool but caps the total number of queued
// waiters, across all kinds, at maxWaiters.
func NewPoolWaiters[C any](c connector.Connector[C], maxPerKind []int, maxWaiters int) *Pool[C] {
	return newPool(c, maxPerKind, maxWaiters)
}

func newPool[C any](c connector.Connector[C], maxPerKind []int, maxWaiters int) *Pool[C] {
	sum := 0
	for _, m := range maxPerKind {
		sum += m
	}
	if maxWaiters < 0 {
		maxWaiters = sum
	}

	p := &Pool[C]{
		connector:  c,
		maxPerKind: append([]int(nil), maxPerKind...),
		maxWaiters: maxWaiters,
		selector:   defaultSelector[C],
		idle:       list.New(),
		weight:     make([]int, len(maxPerKind)),
		queue:      list.New(),
	}

	log.WithField("kinds", len(maxPerKind)).WithField("maxWaiters", maxWaiters).Debug("mpool: pool created")
	return p
}

// SetSelector replaces the function used to match waiters to eligible
// slots. It takes effect starting with the next match-loop iteration.
func (p *Pool[C]) SetSelector(s Selector[C]) {
	if s == nil {
		return
	}
	p.mu.Lock()
	p.selector = s
	p.mu.Unlock()
}

// SetRateLimiter installs (or, with nil, removes) the admission-control
// rate limiter consulted before opening a new connection for a kind.
func (p *Pool[C]) SetRateLimiter(r RateLimiter) {
	p.mu.Lock()
	p.limiter = r
	p.mu.Unlock()
}

// Acquire queues a request for a lease of the given kind. sink is called
// at most once, on ctx, with either a Lease or an error. Acquire never
// blocks; it returns a handle usable with Cancel, or nil if the request
// was rejected before it could be queued.
func (p *Pool[C]) Acquire(ctx connector.Context, kind int, listener WaiterListener, sink func(*Lease[C], error)) *Waiter[C] {
	p.mu.Lock()

	if p.closed {
		p.enqueuePostLocked(ctx, func() { sink(nil, ErrPoolClosed) })
		p.mu.Unlock()
		p.drain()
		return nil
	}

	if kind < 0 || kind >= len(p.maxPerKind) {
		err := fmt.Errorf("mpool: invalid kind %d", kind)
		p.enqueuePostLocked(ctx, func() { sink(nil, err) })
		p.mu.Unlock()
		p.drain()
		return nil
	}

	if p.queue.Len() >= p.maxWaiters {
		n := p.queue.Len()
		p.enqueuePostLocked(ctx, func() { sink(nil, &TooBusyError{QueueLength: n}) })
		p.mu.Unlock()
		p.drain()
		return nil
	}

	w := &waiter[C]{kind: kind, ctx: ctx, listener: listener, sink: sink, state: waiterQueued}
	w.elem = p.queue.PushBack(w)
	p.mu.Unlock()

	if listener != nil {
		listener.OnEnqueue()
	}

	p.mu.Lock()
	p.matchLocked()
	p.mu.Unlock()
	p.drain()

	return &Waiter[C]{w: w}
}

// Cancel removes h from the waiter queue if it is still QUEUED. sink
// receives true if it was removed, false if h had already been matched,
// cancelled, or bound to a connect attempt.
func (p *Pool[C]) Cancel(ctx connector.Context, h *Waiter[C], sink func(bool, error)) {
	p.mu.Lock()

	if p.closed {
		p.enqueuePostLocked(ctx, func() { sink(false, ErrPoolClosed) })
		p.mu.Unlock()
		p.drain()
		return
	}

	w := h.w
	ok := w.state == waiterQueued && w.elem != nil
	if ok {
		p.queue.Remove(w.elem)
		w.elem = nil
		w.state = waiterCancelled
	}

	p.enqueuePostLocked(ctx, func() { sink(ok, nil) })
	p.mu.Unlock()
	p.drain()
}

// Evict atomically removes every idle (AVAILABLE, used=0) slot matching
// predicate and returns their connections, most-recently-idled first.
// predicate is never called on a slot that is in use or still connecting.
func (p *Pool[C]) Evict(ctx connector.Context, predicate func(conn C) bool, sink func([]C, error)) {
	p.mu.Lock()

	if p.closed {
		p.enqueuePostLocked(ctx, func() { sink(nil, ErrPoolClosed) })
		p.mu.Unlock()
		p.drain()
		return
	}

	var evicted []C
	for e := p.idle.Back(); e != nil; {
		prev := e.Prev()
		s := e.Value.(*slot[C])
		if predicate(s.conn) {
			evicted = append(evicted, s.conn)
			p.weight[s.kind] -= s.weight
			p.freeCellLocked(s.index)
		}
		e = prev
	}

	log.WithField("count", len(evicted)).Debug("mpool: evicted idle slots")
	p.enqueuePostLocked(ctx, func() { sink(evicted, nil) })
	p.mu.Unlock()
	p.drain()
}

// Close drains the pool: every queued waiter (including one bound to an
// in-flight connect) fails with ErrPoolClosed, every AVAILABLE slot's
// connection is reported as a success, and every CONNECTING slot's
// eventual outcome is appended as it resolves. sink fires once, after the
// last CONNECTING slot resolves. A second call to Close fails with
// ErrPoolClosed, dispatched as a fresh post-action rather than from within
// the first call's own callback.
func (p *Pool[C]) Close(ctx connector.Context, sink func([]CloseResult[C], error)) {
	p.mu.Lock()

	if p.closed {
		p.enqueuePostLocked(ctx, func() { sink(nil, ErrPoolClosed) })
		p.mu.Unlock()
		p.drain()
		return
	}
	p.closed = true

	for e := p.queue.Front(); e != nil; {
		next := e.Next()
		w := e.Value.(*waiter[C])
		p.queue.Remove(e)
		w.elem = nil
		w.state = waiterCancelled
		wsink := w.sink
		p.enqueuePostLocked(w.ctx, func() { wsink(nil, ErrPoolClosed) })
		e = next
	}

	var results []CloseResult[C]
	pending := 0
	for i := range p.arena {
		s := p.arena[i].slot
		if s == nil {
			continue
		}
		switch s.state {
		case slotAvailable:
			results = append(results, CloseResult[C]{Conn: s.conn})
			p.freeCellLocked(i)
		case slotConnecting:
			pending++
		}
	}

	p.closeResults = results
	p.closePending = pending

	if pending == 0 {
		rs := p.closeResults
		p.enqueuePostLocked(ctx, func() { sink(rs, nil) })
	} else {
		p.closeSink = sink
		p.closeCtx = ctx
	}

	log.WithField("pending", pending).WithField("immediate", len(results)).Debug("mpool: pool closing")

	p.mu.Unlock()
	p.drain()
}

// Size returns the number of slots that are not REMOVED.
func (p *Pool[C]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for i := range p.arena {
		if s := p.arena[i].slot; s != nil && s.state != slotRemoved {
			n++
		}
	}
	return n
}

// Capacity returns the sum of weights of slots that are not REMOVED.
func (p *Pool[C]) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, w := range p.weight {
		total += w
	}
	return total
}

// Requests returns the number of slots currently CONNECTING.
func (p *Pool[C]) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// Waiters returns the current length of the waiter queue.
func (p *Pool[C]) Waiters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// matchLocked implements the match loop of section 4.1. Callers must hold
// p.mu and must drain the post-action queue after releasing it.
func (p *Pool[C]) matchLocked() {
	if p.closed {
		return
	}

	for {
		front := p.queue.Front()
		if front == nil {
			return
		}

		w := front.Value.(*waiter[C])
		if w.state != waiterQueued {
			// The head is already bound to an in-flight connect;
			// nothing more can happen until it resolves.
			return
		}

		eligible := p.snapshotLocked(w.kind)
		chosen, ok := p.selector(w.info(), eligible)
		if ok {
			s := p.arena[int(chosen.id)].slot
			p.unmarkIdleLocked(s)
			s.used++

			p.queue.Remove(front)
			w.elem = nil
			w.state = waiterCompleted

			lease := &Lease[C]{pool: p, conn: s.conn, index: s.index, gen: p.arena[s.index].gen}
			wsink := w.sink
			p.enqueuePostLocked(w.ctx, func() { wsink(lease, nil) })
			continue
		}

		if !p.tryOpenLocked(w) {
			return
		}
		return
	}
}

func (p *Pool[C]) snapshotLocked(kind int) []SlotInfo[C] {
	var out []SlotInfo[C]
	for i := range p.arena {
		s := p.arena[i].slot
		if s == nil || s.kind != kind || s.state != slotAvailable || s.used >= s.concurrency {
			continue
		}
		out = append(out, s.info())
	}
	return out
}

func (p *Pool[C]) tryOpenLocked(w *waiter[C]) bool {
	kind := w.kind
	if p.weight[kind]+provisionalWeight > p.maxPerKind[kind] {
		return false
	}
	if p.limiter != nil && !p.limiter.Allow(kind) {
		return false
	}

	idx := p.allocCellLocked()
	s := &slot[C]{
		index:  idx,
		kind:   kind,
		weight: provisionalWeight,
		state:  slotConnecting,
		ctx:    w.ctx,
		waiter: w,
	}
	p.arena[idx].slot = s
	p.weight[kind] += provisionalWeight
	p.requests++

	w.state = waiterConnecting

	gen := p.arena[idx].gen
	listener := w.listener
	c := p.connector
	sctx := w.ctx

	p.enqueuePostLocked(w.ctx, func() {
		if listener != nil {
			listener.OnConnectInitiated()
		}
		fut := c.Connect(sctx, &slotListener[C]{pool: p, index: idx, gen: gen})
		fut.OnComplete(func(res connector.Result[C], err error) {
			p.onConnectResult(idx, gen, res, err)
		})
	})

	return true
}

func (p *Pool[C]) allocCellLocked() int {
	if n := len(p.freeCells); n > 0 {
		idx := p.freeCells[n-1]
		p.freeCells = p.freeCells[:n-1]
		return idx
	}
	p.arena = append(p.arena, arenaCell[C]{})
	return len(p.arena) - 1
}

func (p *Pool[C]) freeCellLocked(idx int) {
	p.unmarkIdleLocked(p.arena[idx].slot)
	p.arena[idx].slot = nil
	p.arena[idx].gen++
	p.freeCells = append(p.freeCells, idx)
}

func (p *Pool[C]) markIdleLocked(s *slot[C]) {
	if s.idleElem == nil {
		s.idleElem = p.idle.PushBack(s)
	}
}

func (p *Pool[C]) unmarkIdleLocked(s *slot[C]) {
	if s == nil || s.idleElem == nil {
		return
	}
	p.idle.Remove(s.idleElem)
	s.idleElem = nil
}

// onConnectResult handles the asynchronous completion of a connect
// attempt started by tryOpenLocked. index/gen identify the slot; a
// mismatch means the slot was since discarded and this result is stale.
func (p *Pool[C]) onConnectResult(index int, gen uint64, res connector.Result[C], err error) {
	p.mu.Lock()

	cell := &p.arena[index]
	if cell.gen != gen || cell.slot == nil {
		p.mu.Unlock()
		return
	}
	s := cell.slot
	w := s.waiter
	s.waiter = nil
	closing := p.closed

	if err != nil {
		p.weight[s.kind] -= s.weight
		p.requests--
		p.freeCellLocked(index)

		if closing {
			p.closeResults = append(p.closeResults, CloseResult[C]{Err: err})
			p.finishCloseStepLocked()
		} else if w != nil {
			if w.elem != nil {
				p.queue.Remove(w.elem)
				w.elem = nil
			}
			w.state = waiterCompleted
			wsink := w.sink
			wctx := w.ctx
			p.enqueuePostLocked(wctx, func() { wsink(nil, connectFailed(err)) })
			p.matchLocked()
		}

		p.mu.Unlock()
		p.drain()
		return
	}

	s.state = slotAvailable
	s.conn = res.Conn
	s.concurrency = res.Concurrency
	p.weight[s.kind] += res.Weight - s.weight
	s.weight = res.Weight
	p.requests--

	if closing {
		p.closeResults = append(p.closeResults, CloseResult[C]{Conn: res.Conn})
		p.freeCellLocked(index)
		p.finishCloseStepLocked()
		p.mu.Unlock()
		p.drain()
		return
	}

	if w != nil && w.elem != nil {
		s.used = 1
		p.queue.Remove(w.elem)
		w.elem = nil
		w.state = waiterCompleted

		lease := &Lease[C]{pool: p, conn: s.conn, index: s.index, gen: cell.gen}
		wsink := w.sink
		wctx := w.ctx
		p.enqueuePostLocked(wctx, func() { wsink(lease, nil) })
	}

	p.matchLocked()
	p.mu.Unlock()
	p.drain()
}

func (p *Pool[C]) finishCloseStepLocked() {
	p.closePending--
	if p.closePending == 0 && p.closeSink != nil {
		rs := p.closeResults
		sink := p.closeSink
		ctx := p.closeCtx
		p.closeSink = nil
		p.enqueuePostLocked(ctx, func() { sink(rs, nil) })
	}
}

// recycle is the serialized counterpart of Lease.Recycle.
func (p *Pool[C]) recycle(index int, gen uint64) {
	p.mu.Lock()

	cell := &p.arena[index]
	if cell.gen == gen && cell.slot != nil {
		s := cell.slot
		if s.used > 0 {
			s.used--
		}

		switch {
		case s.state == slotRemoved && s.used == 0:
			p.freeCellLocked(index)
		case s.state == slotAvailable && s.used == 0:
			p.markIdleLocked(s)
		}

		if !p.closed {
			p.matchLocked()
		}
	}

	p.mu.Unlock()
	p.drain()
}

func (p *Pool[C]) onRemove(index int, gen uint64) {
	p.mu.Lock()

	cell := &p.arena[index]
	if cell.gen != gen || cell.slot == nil {
		p.mu.Unlock()
		return
	}
	s := cell.slot

	switch s.state {
	case slotConnecting:
		w := s.waiter
		s.waiter = nil

		if p.closed {
			// The bound waiter already failed with ErrPoolClosed when
			// Close began; it must not be touched again. The slot's
			// removal is instead reported through the close outcome.
			p.weight[s.kind] -= s.weight
			p.requests--
			p.freeCellLocked(index)
			p.closeResults = append(p.closeResults, CloseResult[C]{Err: connectFailed(errRemovedWhileConnecting)})
			p.finishCloseStepLocked()
			break
		}

		if w != nil {
			if w.elem != nil {
				p.queue.Remove(w.elem)
				w.elem = nil
			}
			w.state = waiterCompleted
			wsink := w.sink
			wctx := w.ctx
			p.enqueuePostLocked(wctx, func() { wsink(nil, connectFailed(errRemovedWhileConnecting)) })
		}
		p.weight[s.kind] -= s.weight
		p.requests--
		p.freeCellLocked(index)
		p.matchLocked()

	case slotAvailable:
		s.setRemoved()
		p.weight[s.kind] -= s.weight
		if s.used == 0 {
			p.freeCellLocked(index)
		}
		p.matchLocked()
	}

	p.mu.Unlock()
	p.drain()
}

func (p *Pool[C]) onConcurrencyChange(index int, gen uint64, n int) {
	p.mu.Lock()

	cell := &p.arena[index]
	if cell.gen != gen || cell.slot == nil {
		p.mu.Unlock()
		return
	}
	s := cell.slot
	old := s.concurrency
	s.concurrency = n

	if n > old && s.state == slotAvailable {
		p.matchLocked()
	}

	p.mu.Unlock()
	p.drain()
}

func (p *Pool[C]) enqueuePostLocked(ctx connector.Context, fn func()) {
	p.post = append(p.post, postAction{ctx: ctx, fn: fn})
}

// drain runs the trampoline: it dispatches queued post-actions, in
// arrival order, outside the critical section, until none remain. A
// dispatched callback may re-enter the pool and enqueue more post-actions,
// which are drained in turn by the same loop.
func (p *Pool[C]) drain() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true

	for len(p.post) > 0 {
		next := p.post[0]
		p.post = p.post[1:]
		p.mu.Unlock()

		next.ctx.Execute(next.fn)

		p.mu.Lock()
	}

	p.draining = false
	p.mu.Unlock()
}

// slotListener adapts connector.Listener events for one slot back into
// the pool's serialization domain.
type slotListener[C any] struct {
	pool  *Pool[C]
	index int
	gen   uint64
}

func (l *slotListener[C]) OnRemove() {
	l.pool.onRemove(l.index, l.gen)
}

func (l *slotListener[C]) OnConcurrencyChange(concurrency int) {
	l.pool.onConcurrencyChange(l.index, l.gen, concurrency)
}
