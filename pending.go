package beanstalk

import (
	"sync"
)

// result is what a waiting command receives.
type result struct {
	verb  string
	frame *Frame
	err   error
}

// pending correlates one written command with the reply it expects.
type pending struct {
	verb   string
	expect string
	done   chan result
}

func (p *pending) complete(f *Frame, err error) {
	p.done <- result{verb: p.verb, frame: f, err: err}
}

// pendingQueue matches replies to requests in strict issue order.
// The client pushes while holding its own write lock so that queue order and
// wire order never diverge; the read loop pops.
type pendingQueue struct {
	mu    sync.Mutex
	items []*pending
}

func (q *pendingQueue) push(verb, expect string) *pending {
	p := &pending{verb: verb, expect: expect, done: make(chan result, 1)}
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	return p
}

func (q *pendingQueue) pop() *pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return p
}

// Len returns the number of commands still waiting for a reply.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// resolve completes the oldest outstanding command with f. It returns the
// command it completed, or nil if nothing was outstanding.
func (q *pendingQueue) resolve(f *Frame) *pending {
	p := q.pop()
	if p == nil {
		return nil
	}

	switch {
	case f.Tag != p.expect:
		p.complete(nil, &ProtocolError{Verb: p.verb, Tag: f.Tag, Args: f.Args})
	case f.err != nil:
		p.complete(nil, f.err)
	default:
		p.complete(f, nil)
	}
	return p
}

// failAll completes every outstanding command after the connection dropped.
// Commands that expect no reply at all (quit) succeed; the rest get err.
func (q *pendingQueue) failAll(err error) int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, p := range items {
		if p.expect == "" {
			p.complete(nil, nil)
			continue
		}
		p.complete(nil, err)
	}
	return len(items)
}
