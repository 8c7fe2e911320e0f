// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dslock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWriterLockExcludesConcurrentHolders(t *testing.T) {
	var l WriterLock

	l.Lock()
	assert.False(t, l.TryLock(), "TryLock should fail while already held")
	l.Unlock()
	assert.True(t, l.TryLock(), "TryLock should succeed once released")
	l.Unlock()
}

func TestWriterLockSerializesConcurrentCallers(t *testing.T) {
	var l WriterLock
	var mu sync.Mutex
	order := make([]int, 0, 2)
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			l.Lock()
			defer l.Unlock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			active--
			order = append(order, i)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, order, 2, "both holders should have run")
	assert.Equal(t, 1, maxActive, "holders should never have run concurrently")
}
