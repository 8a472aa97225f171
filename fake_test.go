// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpool

import (
	"sync"

	"github.com/weiwenchen2022/mpool/connector"
)

// testCtx is the simplest possible connector.Context: it runs every
// callback immediately, on the calling goroutine, matching the Context
// doc comment's "for tests, run the function immediately" case. It is not
// zero-size, so that two &testCtx{} values are distinct under ==.
type testCtx struct{ _ byte }

func (c *testCtx) Execute(fn func()) { fn() }

// connectCall records one Connector.Connect invocation so a test can
// resolve it (Succeed/Fail) and inspect or drive its Listener.
type connectCall[C any] struct {
	ctx      connector.Context
	listener connector.Listener
	promise  *connector.Promise[C]
}

// fakeConnector is a connector.Connector whose connect attempts never
// resolve on their own; a test resolves each one explicitly via its
// recorded connectCall, to exercise the pool's state machine
// deterministically.
type fakeConnector[C any] struct {
	mu    sync.Mutex
	calls []*connectCall[C]
	valid func(C) bool
}

func (f *fakeConnector[C]) Connect(ctx connector.Context, listener connector.Listener) connector.Future[C] {
	p := connector.NewPromise[C]()

	f.mu.Lock()
	f.calls = append(f.calls, &connectCall[C]{ctx: ctx, listener: listener, promise: p})
	f.mu.Unlock()

	return p.Future()
}

func (f *fakeConnector[C]) IsValid(conn C) bool {
	if f.valid == nil {
		return true
	}
	return f.valid(conn)
}

func (f *fakeConnector[C]) nthCall(n int) *connectCall[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[n]
}

func (f *fakeConnector[C]) numCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
