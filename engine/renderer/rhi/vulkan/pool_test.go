package vulkan

import (
	"errors"
	"sync"
	"testing"
)

func TestLockPoolSerialisesGroup(t *testing.T) {
	p := NewLockPool()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.SafeCall(PipelineManagement, func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("concurrent calls in one group = %d, want 1", maxSeen)
	}
}

func TestLockPoolReturnsError(t *testing.T) {
	p := NewLockPool()
	want := errors.New("boom")
	if err := p.SafeCall(ResourceManagement, func() error { return want }); !errors.Is(err, want) {
		t.Errorf("SafeCall() error = %v, want %v", err, want)
	}
	// the group is released after an error
	if err := p.SafeCall(ResourceManagement, func() error { return nil }); err != nil {
		t.Errorf("SafeCall() error = %v", err)
	}

	p.SetQueueFamily(0)
	calls := 0
	for i := 0; i < 2; i++ {
		_ = p.SafeQueueCall(0, func() error { calls++; return nil })
	}
	// unknown families get a mutex on demand
	_ = p.SafeQueueCall(3, func() error { calls++; return nil })
	if calls != 3 {
		t.Errorf("queue calls = %d, want 3", calls)
	}
}
