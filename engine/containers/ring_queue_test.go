package containers

import (
	"errors"
	"testing"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}
	if err := q.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() on full queue error = %v, want ErrQueueFull", err)
	}
	if v, _ := q.Peek(); v != 1 {
		t.Errorf("Peek() = %d, want 1", v)
	}
	if v, _ := q.Dequeue(); v != 1 {
		t.Errorf("Dequeue() = %d, want 1", v)
	}
	// wrap around
	if err := q.Enqueue(4); err != nil {
		t.Fatalf("Enqueue(4) error = %v", err)
	}
	for _, want := range []int{2, 3, 4} {
		v, err := q.Dequeue()
		if err != nil || v != want {
			t.Errorf("Dequeue() = %d, %v, want %d", v, err, want)
		}
	}
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Dequeue() on empty queue error = %v, want ErrQueueEmpty", err)
	}
	if q.Len() != 0 || !q.IsEmpty() {
		t.Errorf("Len() = %d, want empty", q.Len())
	}
}
