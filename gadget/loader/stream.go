package loader

import (
	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// Stream feeds a Session from one bulk OUT endpoint. A single chunk-sized
// request is kept armed while the gadget is configured.
type Stream struct {
	ep     uint8
	buf    []byte
	sess   *Session
	req    *udc.Request
	u      *udc.UDC
	chunks int

	// Done runs in interrupt context once a whole image is in memory. It
	// may hand off execution; the stream stops if it was unbound meanwhile.
	Done func(u *udc.UDC, h Header)
}

// NewStream returns a stream on OUT endpoint number ep that receives
// chunkSize bytes per request into mem.
func NewStream(ep uint8, mem hal.Memory, chunkSize int) *Stream {
	return &Stream{
		ep:   ep,
		buf:  make([]byte, chunkSize),
		sess: NewSession(mem),
	}
}

// Session returns the reassembly state.
func (s *Stream) Session() *Session { return s.sess }

// Bind starts a new session and allocates the stream's request.
func (s *Stream) Bind(u *udc.UDC) {
	s.u = u
	s.sess.Reset()
	s.chunks = 0
	s.req = u.Endpoint(s.ep).AllocRequest()
}

// Unbind releases the request.
func (s *Stream) Unbind(u *udc.UDC) {
	u.Endpoint(s.ep).FreeRequest(s.req)
	s.req = nil
	s.u = nil
}

// Start arms the request unless the endpoint already has one queued.
func (s *Stream) Start(u *udc.UDC) error {
	ep := u.Endpoint(s.ep)
	if s.req == nil || ep.Pending() != 0 {
		return nil
	}
	s.req.Buf = s.buf
	s.req.Length = len(s.buf)
	s.req.Complete = s.complete
	return ep.Queue(s.req)
}

func (s *Stream) complete(ep *udc.Endpoint, req *udc.Request) {
	if req.Status != pkg.StatusSuccess {
		return
	}
	s.chunks++

	done, err := s.sess.Feed(req.Buf[:req.Actual])
	if err != nil {
		pkg.LogWarn(pkg.ComponentLoader, "chunk discarded",
			"chunk", s.chunks,
			"bytes", req.Actual,
			"error", err)
	}
	if done {
		h := s.sess.Header()
		pkg.LogInfo(pkg.ComponentLoader, "image received",
			"addr", h.Addr,
			"length", h.Length,
			"chunks", s.chunks)
		s.sess.Reset()
		s.chunks = 0
		if s.Done != nil {
			s.Done(s.u, h)
		}
		if s.req != req {
			return
		}
	}

	if err := ep.Queue(req); err != nil {
		pkg.LogWarn(pkg.ComponentLoader, "re-arm failed", "error", err)
	}
}
