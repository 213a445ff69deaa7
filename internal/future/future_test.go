package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestResolveDeliversValue(t *testing.T) {
	f := New[int]()
	go f.Resolve(42)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	value, err := f.Result(ctx)
	if err != nil {
		t.Fatalf("Result returned error: %v", err)
	}
	if value != 42 {
		t.Fatalf("expected 42, got %d", value)
	}
}

func TestRejectDeliversError(t *testing.T) {
	f := New[string]()
	boom := errors.New("boom")
	f.Reject(boom)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := f.Result(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestDoubleSettlePanics(t *testing.T) {
	f := New[int]()
	f.Resolve(1)
	defer func() {
		if recover() == nil {
			t.Fatalf("second settle did not panic")
		}
	}()
	f.Resolve(2)
}

func TestSubscribersFireInRegistrationOrder(t *testing.T) {
	f := New[int]()
	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 3; i++ {
		i := i
		f.Subscribe(func(value int, err error) {
			mu.Lock()
			order = append(order, i)
			if len(order) == 3 {
				close(done)
			}
			mu.Unlock()
		})
	}
	f.Resolve(9)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("subscribers did not fire")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("subscriber order %v", order)
		}
	}
}

func TestSubscribeAfterSettlement(t *testing.T) {
	f := Resolved("ready")
	got := make(chan string, 1)
	f.Subscribe(func(value string, err error) {
		got <- value
	})
	select {
	case value := <-got:
		if value != "ready" {
			t.Fatalf("unexpected value %q", value)
		}
	case <-time.After(time.Second):
		t.Fatalf("late subscriber never fired")
	}
}

func TestResultHonoursContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Result(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
