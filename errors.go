// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpool

import (
	"errors"
	"fmt"
)

// ErrPoolClosed is returned by any pool operation invoked after Close has
// completed, and delivered to every waiter still queued when Close began.
var ErrPoolClosed = errors.New("mpool: pool is closed")

// ErrAlreadyRecycled is returned by a Lease's second call to Recycle. It is
// a programming error in the caller and does not affect the pool.
var ErrAlreadyRecycled = errors.New("mpool: lease already recycled")

// TooBusyError is returned by Acquire when the waiter queue has already
// reached its configured maximum.
type TooBusyError struct {
	// QueueLength is the number of waiters already queued at the time
	// the request was rejected.
	QueueLength int
}

func (e *TooBusyError) Error() string {
	return fmt.Sprintf("mpool: too busy, %d waiters already queued", e.QueueLength)
}

// Is reports whether target is ErrTooBusy, so that errors.Is(err,
// ErrTooBusy) works regardless of QueueLength.
func (e *TooBusyError) Is(target error) bool {
	return target == ErrTooBusy
}

// ErrTooBusy is a sentinel usable with errors.Is to match any *TooBusyError.
var ErrTooBusy = errors.New("mpool: too busy")

// ConnectFailedError wraps the cause a Connector reported for a failed
// connect attempt.
type ConnectFailedError struct {
	Cause error
}

func (e *ConnectFailedError) Error() string {
	return fmt.Sprintf("mpool: connect failed: %v", e.Cause)
}

func (e *ConnectFailedError) Unwrap() error {
	return e.Cause
}

func (e *ConnectFailedError) Is(target error) bool {
	return target == ErrConnectFailed
}

// ErrConnectFailed is a sentinel usable with errors.Is to match any
// *ConnectFailedError regardless of cause.
var ErrConnectFailed = errors.New("mpool: connect failed")

func connectFailed(cause error) error {
	log.WithError(cause).Debug("mpool: connect attempt failed")
	return &ConnectFailedError{Cause: cause}
}
