package core

import (
	"sync"
	"testing"
)

func TestEventBusFire(t *testing.T) {
	bus := NewEventBus()
	var got []string
	first, second := "first", "second"
	bus.Register(EventResized, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		got = append(got, listener.(string))
		return false
	})
	bus.Register(EventResized, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		got = append(got, listener.(string))
		return true
	})

	if !bus.Fire(EventResized, nil, EventContext{}) {
		t.Error("Fire() = false, want handled")
	}
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Errorf("listeners ran %v, want [first second]", got)
	}
}

func TestEventBusRegisterTwice(t *testing.T) {
	bus := NewEventBus()
	noop := func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }
	if !bus.Register(EventApplicationQuit, "l", noop) {
		t.Fatal("first Register() = false")
	}
	if bus.Register(EventApplicationQuit, "l", noop) {
		t.Error("second Register() = true, want false")
	}
	if !bus.Unregister(EventApplicationQuit, "l") {
		t.Error("Unregister() = false")
	}
	if bus.Unregister(EventApplicationQuit, "l") {
		t.Error("Unregister() of missing listener = true")
	}
}

func TestEventBusPostDispatch(t *testing.T) {
	bus := NewEventBus()
	var sizes [][2]uint32
	bus.Register(EventResized, "r", func(_ SystemEventCode, _, _ interface{}, data EventContext) bool {
		sizes = append(sizes, [2]uint32{data.Data.U32[0], data.Data.U32[1]})
		return true
	})

	var wg sync.WaitGroup
	for i := uint32(1); i <= 8; i++ {
		wg.Add(1)
		go func(i uint32) {
			defer wg.Done()
			var data EventContext
			data.Data.U32[0], data.Data.U32[1] = i, i
			bus.Post(EventResized, nil, data)
		}(i)
	}
	wg.Wait()

	if len(sizes) != 0 {
		t.Fatalf("listener ran before Dispatch")
	}
	if n := bus.Dispatch(); n != 8 {
		t.Errorf("Dispatch() = %d, want 8", n)
	}
	if len(sizes) != 8 {
		t.Errorf("listener ran %d times, want 8", len(sizes))
	}
	if n := bus.Dispatch(); n != 0 {
		t.Errorf("second Dispatch() = %d, want 0", n)
	}
}
