// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpool_test

import (
	"fmt"

	"github.com/weiwenchen2022/mpool"
	"github.com/weiwenchen2022/mpool/connector"
)

// syncContext is the simplest connector.Context: it runs every callback
// immediately, on the calling goroutine.
type syncContext struct{}

func (syncContext) Execute(fn func()) { fn() }

// stringConnector hands out connections named "conn-N", resolving every
// connect attempt synchronously.
type stringConnector struct{ n int }

func (c *stringConnector) Connect(ctx connector.Context, listener connector.Listener) connector.Future[string] {
	c.n++
	p := connector.NewPromise[string]()
	p.Succeed(connector.Result[string]{
		Conn:        fmt.Sprintf("conn-%d", c.n),
		Concurrency: 1,
		Weight:      1,
	})
	return p.Future()
}

func (c *stringConnector) IsValid(conn string) bool { return true }

func Example() {
	p := mpool.NewPool[string](&stringConnector{}, []int{1})

	p.Acquire(syncContext{}, 0, nil, func(lease *mpool.Lease[string], err error) {
		if err != nil {
			fmt.Println("acquire failed:", err)
			return
		}
		defer lease.Recycle()
		fmt.Println(lease.Get())
	})

	// Output:
	// conn-1
}
