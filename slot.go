package mpool

import (
	"container/list"

	"github.com/weiwenchen2022/mpool/connector"
)

type slotState uint8

const (
	slotConnecting slotState = iota
	slotAvailable
	slotRemoved
)

func (s slotState) String() string {
	switch s {
	case slotConnecting:
		return "connecting"
	case slotAvailable:
		return "available"
	case slotRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// slot is the pool's internal record for one managed connection attempt
// or connection. Slots live in the Pool's arena and are addressed by
// (index, generation) so that a stale Lease can never reach a slot that
// has since been purged and the cell reused.
type slot[C any] struct {
	index int

	kind   int
	weight int // provisional while connecting; trued up on connect success

	concurrency int
	used        int

	state slotState
	ctx   connector.Context
	conn  C

	// waiter is the waiter bound to this slot while state ==
	// slotConnecting; nil once the connect attempt resolves.
	waiter *waiter[C]

	// idleElem is this slot's node in Pool.idle while used==0 and
	// state==slotAvailable; nil otherwise.
	idleElem *list.Element
}

// info returns the read-only SlotInfo view handed to a Selector.
func (s *slot[C]) info() SlotInfo[C] {
	return SlotInfo[C]{
		id:          uint64(s.index),
		kind:        s.kind,
		weight:      s.weight,
		concurrency: s.concurrency,
		used:        s.used,
		ctx:         s.ctx,
		conn:        s.conn,
	}
}

// setRemoved marks the slot REMOVED. It is idempotent: only the first call
// returns true.
func (s *slot[C]) setRemoved() bool {
	if s.state == slotRemoved {
		return false
	}
	s.state = slotRemoved
	return true
}
