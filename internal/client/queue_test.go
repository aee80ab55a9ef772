package client

import (
	"context"
	"errors"
	"testing"
)

func TestQueueFIFOAcrossGrowth(t *testing.T) {
	var q queue
	all := make([]*Pending, 0, 100)
	popped := 0
	for i := 0; i < 100; i++ {
		p := newPending()
		all = append(all, p)
		q.push(p)
		if i%3 == 0 {
			got, ok := q.pop()
			if !ok || got != all[popped] {
				t.Fatalf("pop %d out of order", popped)
			}
			popped++
		}
	}
	rest := q.drain()
	if len(rest) != len(all)-popped {
		t.Fatalf("unexpected drain size: %d", len(rest))
	}
	for i, p := range rest {
		if p != all[popped+i] {
			t.Fatalf("drain %d out of order", i)
		}
	}
	if q.len() != 0 {
		t.Fatalf("queue not empty after drain")
	}
	if _, ok := q.pop(); ok {
		t.Fatalf("pop on empty queue succeeded")
	}
}

func TestPendingSettlesOnce(t *testing.T) {
	p := newPending()
	if !p.settle("0x1", nil) {
		t.Fatalf("first settle rejected")
	}
	if p.settle("", errors.New("late")) {
		t.Fatalf("second settle accepted")
	}
	sig, err := p.Wait(context.Background())
	if err != nil || sig != "0x1" {
		t.Fatalf("unexpected result: %q %v", sig, err)
	}
}

func TestPendingWaitHonorsContext(t *testing.T) {
	p := newPending()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	p.settle("0x2", nil)
	if sig, err := p.Wait(context.Background()); err != nil || sig != "0x2" {
		t.Fatalf("unexpected result after abandoned wait: %q %v", sig, err)
	}
}
