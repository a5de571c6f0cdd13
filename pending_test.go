package beanstalk

import (
	"errors"
	"reflect"
	"testing"
)

func TestPendingQueue_FIFO(t *testing.T) {
	var q pendingQueue
	a := q.push("use", "USING")
	b := q.push("put", "INSERTED")
	c := q.push("delete", "DELETED")

	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	for _, f := range []*Frame{
		{Tag: "USING", Args: []string{"test"}},
		{Tag: "INSERTED", Args: []string{"1"}},
		{Tag: "DELETED"},
	} {
		if q.resolve(f) == nil {
			t.Fatalf("resolve(%s) found nothing outstanding", f.Tag)
		}
	}

	for i, p := range []*pending{a, b, c} {
		r := <-p.done
		if r.err != nil {
			t.Fatalf("slot %d: unexpected error %v", i, r.err)
		}
		if r.frame.Tag != p.expect {
			t.Errorf("slot %d got %s, want %s", i, r.frame.Tag, p.expect)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestPendingQueue_TagMismatch(t *testing.T) {
	var q pendingQueue
	p := q.push("reserve-with-timeout", "RESERVED")
	q.resolve(&Frame{Tag: "TIMED_OUT"})

	r := <-p.done
	if r.frame != nil {
		t.Errorf("frame = %v, want nil", r.frame)
	}
	var perr *ProtocolError
	if !errors.As(r.err, &perr) {
		t.Fatalf("err = %T %v, want *ProtocolError", r.err, r.err)
	}
	if perr.Tag != "TIMED_OUT" || perr.Verb != "reserve-with-timeout" {
		t.Errorf("got %+v", perr)
	}
	if !errors.Is(r.err, ErrTimedOut) {
		t.Error("errors.Is(err, ErrTimedOut) = false")
	}
	if errors.Is(r.err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = true")
	}
	if Tag(r.err) != "TIMED_OUT" {
		t.Errorf("Tag = %q, want TIMED_OUT", Tag(r.err))
	}
}

func TestPendingQueue_FrameError(t *testing.T) {
	var q pendingQueue
	p := q.push("stats", "OK")
	q.resolve(&Frame{Tag: "OK", err: ErrMalformedFrame})

	r := <-p.done
	if !errors.Is(r.err, ErrMalformedFrame) {
		t.Errorf("err = %v, want ErrMalformedFrame", r.err)
	}
}

func TestPendingQueue_ResolveEmpty(t *testing.T) {
	var q pendingQueue
	if p := q.resolve(&Frame{Tag: "DELETED"}); p != nil {
		t.Errorf("resolve on empty queue returned %v", p)
	}
}

func TestPendingQueue_FailAll(t *testing.T) {
	var q pendingQueue
	put := q.push("put", "INSERTED")
	watch := q.push("watch", "WATCHING")
	quit := q.push("quit", "")
	reserve := q.push("reserve", "RESERVED")

	// Route every completion into one channel to observe the order.
	completed := make(chan result, 4)
	for _, p := range []*pending{put, watch, quit, reserve} {
		p.done = completed
	}

	if n := q.failAll(ErrConnectionLost); n != 4 {
		t.Errorf("failAll = %d, want 4", n)
	}
	close(completed)

	var order []string
	for r := range completed {
		order = append(order, r.verb)
		if r.verb == "quit" {
			if r.err != nil || r.frame != nil {
				t.Errorf("quit: got %v %v, want nil nil", r.frame, r.err)
			}
			continue
		}
		if !errors.Is(r.err, ErrConnectionLost) {
			t.Errorf("%s: err = %v, want ErrConnectionLost", r.verb, r.err)
		}
	}
	want := []string{"put", "watch", "quit", "reserve"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("completion order = %v, want %v", order, want)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}
