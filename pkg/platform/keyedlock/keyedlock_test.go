package keyedlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutex_SerializesSameKey(t *testing.T) {
	m := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("product-1")
			defer m.Unlock("product-1")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestMutex_IndependentKeysDoNotBlock(t *testing.T) {
	m := New()
	m.Lock("a")
	defer m.Unlock("a")

	done := make(chan struct{})
	go func() {
		m.Lock("b")
		m.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on independent key blocked")
	}
}

func TestLockAll_OverlappingSetsDoNotDeadlock(t *testing.T) {
	m := New()
	// Opposite declaration orders; LockAll must impose its own ordering.
	setA := []string{"p3", "p1", "p2"}
	setB := []string{"p2", "p3", "p1"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release := m.LockAll(setA)
			release()
		}()
		go func() {
			defer wg.Done()
			release := m.LockAll(setB)
			release()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock between overlapping LockAll holders")
	}
}

func TestLockAll_CollapsesDuplicates(t *testing.T) {
	m := New()
	release := m.LockAll([]string{"x", "x", "y"})
	release()

	// Releasing duplicates twice would panic; reaching here means they were
	// collapsed.
	m.Lock("x")
	m.Unlock("x")
}
