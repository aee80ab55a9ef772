package client

import (
	"context"
	"sync"
)

// Pending is the result slot for one sent request. It settles exactly once.
type Pending struct {
	done      chan struct{}
	once      sync.Once
	signature string
	err       error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) settle(signature string, err error) bool {
	settled := false
	p.once.Do(func() {
		p.signature = signature
		p.err = err
		close(p.done)
		settled = true
	})
	return settled
}

// Done is closed once the request has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the response arrives or ctx ends. Abandoning a wait does
// not remove the request from the queue; its response is still consumed in
// order.
func (p *Pending) Wait(ctx context.Context) (string, error) {
	select {
	case <-p.done:
		return p.signature, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// queue is a FIFO ring of pending requests. Callers hold the client lock.
type queue struct {
	buf  []*Pending
	head int
	size int
}

func (q *queue) len() int {
	return q.size
}

func (q *queue) push(p *Pending) {
	if q.size == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.size)%len(q.buf)] = p
	q.size++
}

func (q *queue) pop() (*Pending, bool) {
	if q.size == 0 {
		return nil, false
	}
	p := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return p, true
}

// drain removes every pending request, oldest first.
func (q *queue) drain() []*Pending {
	out := make([]*Pending, 0, q.size)
	for {
		p, ok := q.pop()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}

func (q *queue) grow() {
	n := len(q.buf) * 2
	if n == 0 {
		n = 16
	}
	next := make([]*Pending, n)
	for i := 0; i < q.size; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}
