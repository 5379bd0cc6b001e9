package frame

import (
	"context"
	"testing"
	"time"
)

func makeFrame(seq uint64) Frame {
	return Frame{
		Data:      []byte{byte(seq)},
		MIMEType:  "image/jpeg",
		Timestamp: time.Now(),
		Sequence:  seq,
	}
}

func TestNewQueueValidation(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		expectError bool
	}{
		{"valid capacity", 3, false},
		{"capacity one", 1, false},
		{"zero capacity", 0, true},
		{"negative capacity", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQueue(tt.capacity)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for capacity %d, got none", tt.capacity)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if q.Capacity() != tt.capacity {
				t.Errorf("expected capacity %d, got %d", tt.capacity, q.Capacity())
			}
		})
	}
}

func TestQueueEvictsOldest(t *testing.T) {
	q, err := NewQueue(3)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	evictions := 0
	for seq := uint64(1); seq <= 5; seq++ {
		if q.Push(makeFrame(seq)) {
			evictions++
		}
	}

	if evictions != 2 {
		t.Errorf("expected 2 evictions, got %d", evictions)
	}
	if q.Len() != 3 {
		t.Errorf("expected length 3, got %d", q.Len())
	}

	// Survivors are the newest frames, still in arrival order.
	want := []uint64{3, 4, 5}
	for i, expected := range want {
		f, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue unexpectedly empty", i)
		}
		if f.Sequence != expected {
			t.Errorf("pop %d: expected sequence %d, got %d", i, expected, f.Sequence)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue after draining")
	}
}

func TestQueueFIFOWithinCapacity(t *testing.T) {
	q, err := NewQueue(8)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	for seq := uint64(0); seq < 5; seq++ {
		if q.Push(makeFrame(seq)) {
			t.Errorf("unexpected eviction at sequence %d", seq)
		}
	}

	for seq := uint64(0); seq < 5; seq++ {
		f, ok := q.Pop()
		if !ok {
			t.Fatalf("queue empty at sequence %d", seq)
		}
		if f.Sequence != seq {
			t.Errorf("expected sequence %d, got %d", seq, f.Sequence)
		}
	}
}

func TestQueuePopWaitTimeout(t *testing.T) {
	q, err := NewQueue(2)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	start := time.Now()
	_, ok := q.PopWait(context.Background(), 50*time.Millisecond)
	if ok {
		t.Error("expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("PopWait returned too early: %v", elapsed)
	}
}

func TestQueuePopWaitCancellation(t *testing.T) {
	q, err := NewQueue(2)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := q.PopWait(ctx, 5*time.Second)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected PopWait to fail after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("PopWait did not observe cancellation")
	}
}

func TestQueuePopWaitReceivesPush(t *testing.T) {
	q, err := NewQueue(2)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	type result struct {
		f  Frame
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		f, ok := q.PopWait(context.Background(), 5*time.Second)
		done <- result{f, ok}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(makeFrame(7))

	select {
	case r := <-done:
		if !r.ok {
			t.Fatal("expected PopWait to return a frame")
		}
		if r.f.Sequence != 7 {
			t.Errorf("expected sequence 7, got %d", r.f.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatal("PopWait did not wake on push")
	}
}

func TestQueueStats(t *testing.T) {
	q, err := NewQueue(2)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	q.Push(makeFrame(1))
	q.Push(makeFrame(2))
	q.Push(makeFrame(3)) // evicts 1
	q.Pop()

	stats := q.GetStats()
	if stats.Pushed != 3 {
		t.Errorf("expected 3 pushed, got %d", stats.Pushed)
	}
	if stats.Popped != 1 {
		t.Errorf("expected 1 popped, got %d", stats.Popped)
	}
	if stats.Evicted != 1 {
		t.Errorf("expected 1 evicted, got %d", stats.Evicted)
	}
	if stats.Length != 1 {
		t.Errorf("expected length 1, got %d", stats.Length)
	}
}

func TestQueueProducerConsumer(t *testing.T) {
	q, err := NewQueue(4)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	const total = 200
	done := make(chan uint64, 1)

	go func() {
		var last uint64
		var received int
		ctx := context.Background()
		for received < 50 {
			f, ok := q.PopWait(ctx, time.Second)
			if !ok {
				break
			}
			if f.Sequence < last {
				t.Errorf("order violated: %d after %d", f.Sequence, last)
			}
			last = f.Sequence
			received++
		}
		done <- last
	}()

	for seq := uint64(1); seq <= total; seq++ {
		q.Push(makeFrame(seq))
		time.Sleep(time.Microsecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}
}
