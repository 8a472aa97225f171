// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package connector defines the interfaces a caller of package mpool
// implements to let the pool open and supervise connections.
//
// Most code should use package mpool directly.
package connector

import "sync"

// Context is the cooperative execution context a caller supplies when
// invoking a pool operation. The pool does not run a sink inline; it hands
// the callback to the context it was submitted under by calling Execute
// (a waiter's OnEnqueue listener hook is the exception, called directly
// by Acquire). Implementations decide what that means: post
// to an event loop's mailbox, run on a fixed goroutine, or (for tests) run
// the function immediately.
//
// Context values must be comparable, since the pool's default Selector
// compares contexts for affinity with ==.
type Context interface {
	Execute(fn func())
}

// Rooter is implemented by a Context that is a duplicate of another one.
// The pool's default Selector unwraps a Context to its Root before
// comparing it against another for affinity, so that two duplicates of the
// same underlying context are treated as identical.
type Rooter interface {
	Root() Context
}

// Root returns ctx unwrapped to its root, following Rooter as far as it goes.
func Root(ctx Context) Context {
	for {
		r, ok := ctx.(Rooter)
		if !ok {
			return ctx
		}
		ctx = r.Root()
	}
}

// EventLoopIdentifier is optionally implemented by a Context that is pinned
// to one of several equivalent execution threads (an "event loop"). The
// default Selector treats two contexts with the same EventLoopID as an
// affinity match even when the contexts themselves differ.
type EventLoopIdentifier interface {
	EventLoopID() any
}

// Listener receives lifecycle notifications for one connecting or connected
// slot. The pool installs one Listener per call to Connect.
type Listener interface {
	// OnRemove reports that the peer or connector considers the
	// connection unusable. Existing leases on it remain valid; no new
	// lease will be handed out for it.
	OnRemove()

	// OnConcurrencyChange reports that the connection can now serve a
	// different number of simultaneous leases.
	OnConcurrencyChange(concurrency int)
}

// Result is what a Connector reports on a successful Connect.
type Result[C any] struct {
	// Conn is the caller-defined connection payload.
	Conn C

	// Concurrency is the number of simultaneous leases the connection
	// can serve at the moment it is handed to the pool.
	Concurrency int

	// Weight is the capacity cost this connection deducts from its
	// kind's budget. Declared once, at connect time.
	Weight int
}

// Future is returned by Connector.Connect. It completes at most once,
// successfully or not; OnComplete registers the pool's continuation.
//
// If OnComplete is called after the Future has already completed, the
// callback runs synchronously from within OnComplete.
type Future[C any] interface {
	OnComplete(func(Result[C], error))
}

// Connector initiates outbound connections on behalf of a Pool and reports
// whether a previously issued connection remains usable.
type Connector[C any] interface {
	// Connect starts a new connection asynchronously. ctx is the context
	// the pool chose to drive this attempt on. listener receives
	// lifecycle events for the resulting connection for as long as it is
	// known to the pool.
	Connect(ctx Context, listener Listener) Future[C]

	// IsValid is an advisory check consulted by some selectors and
	// eviction predicates; it is never called concurrently with a
	// Connect that produced conn.
	IsValid(conn C) bool
}

// Promise is a one-shot Future a Connector implementation can complete,
// either immediately or from another goroutine.
type Promise[C any] struct {
	mu       sync.Mutex
	done     bool
	result   Result[C]
	err      error
	callback func(Result[C], error)
}

// NewPromise returns an incomplete Promise.
func NewPromise[C any]() *Promise[C] {
	return &Promise[C]{}
}

// Future returns the Future view of p.
func (p *Promise[C]) Future() Future[C] {
	return p
}

// OnComplete implements Future.
func (p *Promise[C]) OnComplete(fn func(Result[C], error)) {
	p.mu.Lock()
	if p.done {
		res, err := p.result, p.err
		p.mu.Unlock()
		fn(res, err)
		return
	}
	p.callback = fn
	p.mu.Unlock()
}

// Succeed completes p successfully. Only the first call has any effect.
func (p *Promise[C]) Succeed(res Result[C]) {
	p.complete(res, nil)
}

// Fail completes p with err. Only the first call has any effect.
func (p *Promise[C]) Fail(err error) {
	var zero Result[C]
	p.complete(zero, err)
}

func (p *Promise[C]) complete(res Result[C], err error) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	p.result, p.err = res, err
	cb := p.callback
	p.mu.Unlock()

	if cb != nil {
		cb(res, err)
	}
}
