package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	var (
		m       Map[int64]
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(7)
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if m.Len() != 0 {
		t.Fatalf("idle keys should be released, got %d", m.Len())
	}
}

func TestLockDifferentKeysIndependent(t *testing.T) {
	var m Map[string]
	unlockA := m.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
	unlockA()
	if m.Len() != 0 {
		t.Fatalf("expected no held keys, got %d", m.Len())
	}
}
