/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package bpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsEmptyBuffer(t *testing.T) {
	b := Get()
	b.WriteString("v=0\r\n")
	Put(b)

	assert.Equal(t, 0, Get().Len())
}

func TestPutDropsLargeBuffers(t *testing.T) {
	b := Get()
	b.Grow(MaxRetainedSize * 2)
	b.WriteString("x")

	// Must not panic and leaves b untouched.
	Put(b)
	assert.Equal(t, 1, b.Len())
}
