// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpool

import (
	"errors"
	"testing"

	"github.com/weiwenchen2022/mpool/connector"
)

func TestLeaseDoubleRecycle(t *testing.T) {
	c := &fakeConnector[string]{}
	p := NewPool[string](c, []int{1})
	ctx := &testCtx{}

	var lease *Lease[string]
	p.Acquire(ctx, 0, nil, func(l *Lease[string], err error) { lease = l })
	c.nthCall(0).promise.Succeed(connector.Result[string]{Conn: "C", Concurrency: 1, Weight: 1})

	if err := lease.Recycle(); err != nil {
		t.Fatal(err)
	}
	if err := lease.Recycle(); !errors.Is(err, ErrAlreadyRecycled) {
		t.Fatalf("expected ErrAlreadyRecycled, got %v", err)
	}
}

// TestLeaseStaleAfterRemove checks that a Lease recycled before its slot
// is removed-and-purged still reports ALREADY_RECYCLED on a second
// Recycle, never a panic or silent success, since the one-shot guard
// lives on the Lease itself rather than on slot identity.
func TestLeaseStaleAfterRemove(t *testing.T) {
	c := &fakeConnector[string]{}
	p := NewPool[string](c, []int{1})
	ctx := &testCtx{}

	var lease *Lease[string]
	p.Acquire(ctx, 0, nil, func(l *Lease[string], err error) { lease = l })
	call := c.nthCall(0)
	call.promise.Succeed(connector.Result[string]{Conn: "C", Concurrency: 1, Weight: 1})

	if err := lease.Recycle(); err != nil {
		t.Fatal(err)
	}

	call.listener.OnRemove()

	if err := lease.Recycle(); !errors.Is(err, ErrAlreadyRecycled) {
		t.Fatalf("expected ErrAlreadyRecycled, got %v", err)
	}
}

func TestLeaseGetReturnsLeasedConnection(t *testing.T) {
	c := &fakeConnector[string]{}
	p := NewPool[string](c, []int{1})
	ctx := &testCtx{}

	var lease *Lease[string]
	p.Acquire(ctx, 0, nil, func(l *Lease[string], err error) { lease = l })
	c.nthCall(0).promise.Succeed(connector.Result[string]{Conn: "C42", Concurrency: 1, Weight: 1})

	if got := lease.Get(); got != "C42" {
		t.Fatalf("got %q, want %q", got, "C42")
	}
}
