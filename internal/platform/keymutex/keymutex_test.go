// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package keymutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapSerializesSameKey(t *testing.T) {
	m := New()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		guard   sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("bk-1")
			guard.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			guard.Unlock()

			guard.Lock()
			inside--
			guard.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, m.Len(), "idle keys are released")
}

func TestMapIndependentKeys(t *testing.T) {
	m := New()
	unlockA := m.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, m.Len())
	unlockA()
	assert.Equal(t, 0, m.Len())
}
