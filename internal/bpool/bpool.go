/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2018 Kopano and its licensors
 */

package bpool

import (
	"bytes"
	"sync"
)

// MaxRetainedSize is the capacity above which buffers are not returned to
// the pool.
const MaxRetainedSize = 256 * 1024

var pool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// Get returns an empty buffer from the pool.
func Get() *bytes.Buffer {
	return pool.Get().(*bytes.Buffer)
}

// Put resets b and returns it into the pool. Buffers which grew beyond
// MaxRetainedSize are dropped.
func Put(b *bytes.Buffer) {
	if b.Cap() > MaxRetainedSize {
		return
	}
	b.Reset()
	pool.Put(b)
}
