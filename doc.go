// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mpool multiplexes a bounded set of expensive, long-lived
// connections across many asynchronous waiters.
//
// Unlike a conventional pool where one connection serves one caller at a
// time, a connection managed by mpool declares a concurrency: the number
// of logical leases it can serve simultaneously, and that number may
// change over the connection's lifetime (a multiplexed RPC transport
// growing its in-flight window, for instance). The Pool hides three
// problems behind a small API: how many connections to open and when
// (admission control), how to match waiters to available capacity as
// concurrency changes (selection), and how to close or evict connections
// without losing in-flight completions or double-recycling a lease.
//
// # Basic usage
//
//	p := mpool.NewPool[net.Conn](connector, []int{10})
//	defer p.Close(ctx, func([]mpool.CloseResult[net.Conn], error) {})
//
//	p.Acquire(ctx, 0, nil, func(lease *mpool.Lease[net.Conn], err error) {
//	    if err != nil {
//	        return
//	    }
//	    defer lease.Recycle()
//	    conn := lease.Get()
//	    _ = conn
//	})
//
// Pool methods never block the calling goroutine. Sinks and
// WaiterListener.OnConnectInitiated are always dispatched through the
// connector.Context the caller supplied, in the order their triggering
// events were admitted into the pool's internal critical section; the one
// callback called directly is WaiterListener.OnEnqueue, which Acquire
// invokes before it returns.
package mpool
