package mpool

import (
	"container/list"

	"github.com/weiwenchen2022/mpool/connector"
)

type waiterState uint8

const (
	waiterQueued waiterState = iota
	waiterConnecting
	waiterCompleted
	waiterCancelled
)

// WaiterListener observes a single waiter's progress through the queue.
type WaiterListener interface {
	// OnEnqueue is called once, synchronously, before Acquire returns.
	OnEnqueue()

	// OnConnectInitiated is called if the waiter caused the pool to open
	// a new connection, dispatched on the waiter's own context.
	OnConnectInitiated()
}

// waiter is the pool's internal record for one pending Acquire call.
type waiter[C any] struct {
	kind     int
	ctx      connector.Context
	listener WaiterListener
	sink     func(*Lease[C], error)

	state waiterState
	elem  *list.Element // this waiter's node in Pool.queue, nil once removed
}

func (w *waiter[C]) info() WaiterInfo[C] {
	return WaiterInfo[C]{kind: w.kind, ctx: w.ctx}
}

// Waiter is an opaque handle to a pending Acquire call, returned so the
// caller can later ask the pool to Cancel it.
type Waiter[C any] struct {
	w *waiter[C]
}
