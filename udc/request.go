package udc

import (
	"sync"

	"github.com/ardnew/softudc/pkg"
)

// CompleteFunc is invoked once per queued request when it leaves its
// endpoint queue, with Status and Actual final. It runs in interrupt context
// when the completion comes from the controller.
type CompleteFunc func(ep *Endpoint, req *Request)

// Request is a unit of work submitted to an endpoint.
//
// Buf holds the data to send, or receives the data read. Length is the number
// of bytes requested and must not exceed len(Buf). Actual counts the bytes
// transferred so far and never exceeds Length.
type Request struct {
	Buf      []byte
	Length   int
	Actual   int
	Status   pkg.Status
	Complete CompleteFunc

	// queue membership
	ep   *Endpoint
	next *Request
}

// Queued reports whether the request is currently on an endpoint queue.
func (r *Request) Queued() bool {
	return r.ep != nil
}

// Remaining returns the number of bytes still to transfer.
func (r *Request) Remaining() int {
	return r.Length - r.Actual
}

func (r *Request) reset() {
	r.Buf = nil
	r.Length = 0
	r.Actual = 0
	r.Status = pkg.StatusSuccess
	r.Complete = nil
	r.ep = nil
	r.next = nil
}

// requestQueue is an owned FIFO of requests linked through Request.next.
type requestQueue struct {
	head, tail *Request
	n          int
}

func (q *requestQueue) empty() bool {
	return q.head == nil
}

func (q *requestQueue) len() int {
	return q.n
}

func (q *requestQueue) front() *Request {
	return q.head
}

func (q *requestQueue) append(ep *Endpoint, r *Request) {
	r.ep = ep
	r.next = nil
	if q.tail == nil {
		q.head = r
	} else {
		q.tail.next = r
	}
	q.tail = r
	q.n++
}

// remove unlinks r and reports whether it was present.
func (q *requestQueue) remove(r *Request) bool {
	var prev *Request
	for cur := q.head; cur != nil; prev, cur = cur, cur.next {
		if cur != r {
			continue
		}
		if prev == nil {
			q.head = cur.next
		} else {
			prev.next = cur.next
		}
		if q.tail == cur {
			q.tail = prev
		}
		cur.next = nil
		cur.ep = nil
		q.n--
		return true
	}
	return false
}

// requestPool recycles requests between gadget sessions.
type requestPool struct {
	pool sync.Pool
}

func newRequestPool() *requestPool {
	return &requestPool{
		pool: sync.Pool{
			New: func() any { return new(Request) },
		},
	}
}

func (p *requestPool) get() *Request {
	r := p.pool.Get().(*Request)
	r.reset()
	return r
}

func (p *requestPool) put(r *Request) {
	r.reset()
	p.pool.Put(r)
}
