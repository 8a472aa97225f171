// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpool

import "testing"

func TestDefaultSelectorPrefersSameContextRoot(t *testing.T) {
	ctxA := &testCtx{}
	ctxB := &testCtx{}

	w := WaiterInfo[string]{kind: 0, ctx: ctxA}
	eligible := []SlotInfo[string]{
		{id: 0, kind: 0, concurrency: 1, used: 0, ctx: ctxB, conn: "fromB"},
		{id: 1, kind: 0, concurrency: 1, used: 0, ctx: ctxA, conn: "fromA"},
	}

	chosen, ok := defaultSelector[string](w, eligible)
	if !ok || chosen.conn != "fromA" {
		t.Fatalf("expected the slot matching the waiter's own context, got %+v", chosen)
	}
}

type loopCtx struct {
	testCtx
	loop any
}

func (c *loopCtx) EventLoopID() any { return c.loop }

func TestDefaultSelectorFallsBackToEventLoopAffinity(t *testing.T) {
	ctxA := &loopCtx{loop: "loop-1"}
	ctxB := &loopCtx{loop: "loop-1"}
	ctxC := &loopCtx{loop: "loop-2"}

	w := WaiterInfo[string]{kind: 0, ctx: ctxA}
	eligible := []SlotInfo[string]{
		{id: 0, kind: 0, concurrency: 1, used: 0, ctx: ctxC, conn: "fromC"},
		{id: 1, kind: 0, concurrency: 1, used: 0, ctx: ctxB, conn: "fromB"},
	}

	chosen, ok := defaultSelector[string](w, eligible)
	if !ok || chosen.conn != "fromB" {
		t.Fatalf("expected the slot sharing the waiter's event-loop identity, got %+v", chosen)
	}
}

func TestDefaultSelectorFallsBackToFirstEligible(t *testing.T) {
	w := WaiterInfo[string]{kind: 0, ctx: &testCtx{}}
	eligible := []SlotInfo[string]{
		{id: 0, kind: 0, concurrency: 1, used: 0, ctx: &testCtx{}, conn: "first"},
		{id: 1, kind: 0, concurrency: 1, used: 0, ctx: &testCtx{}, conn: "second"},
	}

	chosen, ok := defaultSelector[string](w, eligible)
	if !ok || chosen.conn != "first" {
		t.Fatalf("expected the first eligible slot in snapshot order, got %+v", chosen)
	}
}

func TestDefaultSelectorNoneEligible(t *testing.T) {
	w := WaiterInfo[string]{kind: 0, ctx: &testCtx{}}
	if _, ok := defaultSelector[string](w, nil); ok {
		t.Fatal("expected ok=false when no slot is eligible")
	}
}
