package beanstalk

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var crlf = []byte("\r\n")

// bodyKind describes the reply tags that carry a length-prefixed body.
type bodyKind int

const (
	// rawBody is job payload and is never decoded.
	rawBody bodyKind = iota + 1
	// docBody is a YAML document (stats and tube listings).
	docBody
)

var bodyTags = map[string]bodyKind{
	"RESERVED": rawBody,
	"FOUND":    rawBody,
	"OK":       docBody,
}

// Frame is one complete reply from the server.
type Frame struct {
	Tag  string
	Args []string
	// Body holds the raw bytes of RESERVED, FOUND and OK replies.
	Body []byte
	// Doc holds the decoded body of an OK reply when a Decoder is configured.
	Doc any

	err error
}

// Value resolves the frame the way callers of untyped commands see it:
// nil for no arguments, the argument itself for exactly one, and the ordered
// list otherwise. The body (or decoded document) counts as the last argument.
func (f *Frame) Value() any {
	values := make([]any, 0, len(f.Args)+1)
	for _, a := range f.Args {
		values = append(values, a)
	}
	switch {
	case f.Doc != nil:
		values = append(values, f.Doc)
	case f.Body != nil:
		values = append(values, f.Body)
	}

	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0]
	default:
		return values
	}
}

// header is a parsed reply line whose body may still be in flight.
type header struct {
	tag     string
	args    []string
	kind    bodyKind
	size    int // header length including the delimiter
	bodyLen int
}

// maxLineLength bounds a reply line. Real replies are far shorter.
const maxLineLength = 1024

// frameReader rebuilds frames from a stream of arbitrarily sized chunks.
// It is owned by a single read loop and needs no locking.
type frameReader struct {
	buf     []byte
	hdr     *header
	decode  Decoder
	maxBody int

	// err is sticky: once the stream is out of sync nothing more is read.
	err error
}

func newFrameReader(decode Decoder, maxBody int) *frameReader {
	if maxBody <= 0 {
		maxBody = defaultMaxFrameSize
	}
	return &frameReader{decode: decode, maxBody: maxBody}
}

// Feed appends a chunk read from the connection.
func (r *frameReader) Feed(p []byte) {
	if r.err != nil {
		return
	}
	r.buf = append(r.buf, p...)
}

// Buffered returns the number of bytes not yet consumed.
func (r *frameReader) Buffered() int {
	return len(r.buf)
}

// Err returns the error that stopped the reader, if any.
func (r *frameReader) Err() error {
	return r.err
}

// Next returns the next complete frame, or false when more bytes are needed.
// An incomplete body leaves the buffer untouched; the parsed header is kept
// so reconstruction resumes from the same position on the next Feed.
//
// A body-bearing header whose length is unusable or above the limit yields
// one last frame carrying the error, after which Err is set and Next always
// returns false: the body bytes cannot be told apart from later replies.
func (r *frameReader) Next() (*Frame, bool) {
	if r.err != nil {
		return nil, false
	}

	if r.hdr == nil {
		end := bytes.Index(r.buf, crlf)
		if end < 0 {
			if len(r.buf) > maxLineLength {
				r.fail(errors.Wrapf(ErrMalformedFrame, "reply line longer than %d bytes", maxLineLength))
			}
			return nil, false
		}
		h, err := parseHeader(string(r.buf[:end]), r.maxBody)
		if err != nil {
			r.fail(err)
			return &Frame{Tag: h.tag, Args: h.args, err: err}, true
		}
		h.size = end + len(crlf)
		r.hdr = h
	}

	h := r.hdr
	f := &Frame{Tag: h.tag, Args: h.args}
	consumed := h.size

	if h.kind != 0 {
		bodyEnd := h.size + h.bodyLen
		if len(r.buf) < bodyEnd+len(crlf) {
			return nil, false
		}
		f.Body = make([]byte, h.bodyLen)
		copy(f.Body, r.buf[h.size:bodyEnd])
		if h.kind == docBody && r.decode != nil {
			doc, err := r.decode.Decode(f.Body)
			if err != nil {
				f.err = errors.Wrapf(err, "decode %s body", h.tag)
			} else {
				f.Doc = doc
			}
		}
		consumed = bodyEnd + len(crlf)
	}

	r.advance(consumed)
	r.hdr = nil
	return f, true
}

func (r *frameReader) fail(err error) {
	r.err = err
	r.buf = nil
	r.hdr = nil
}

func (r *frameReader) advance(n int) {
	if n >= len(r.buf) {
		r.buf = r.buf[:0]
		return
	}
	r.buf = append(r.buf[:0], r.buf[n:]...)
}

func parseHeader(line string, maxBody int) (*header, error) {
	fields := strings.Split(line, " ")
	h := &header{tag: fields[0], args: fields[1:]}

	kind, ok := bodyTags[h.tag]
	if !ok {
		return h, nil
	}
	h.kind = kind

	if len(h.args) == 0 {
		return h, errors.Wrapf(ErrMalformedFrame, "%s without body length", h.tag)
	}
	last := h.args[len(h.args)-1]
	n, err := strconv.Atoi(last)
	if err != nil || n < 0 {
		return h, errors.Wrapf(ErrMalformedFrame, "%s body length %q", h.tag, last)
	}
	if n > maxBody {
		return h, errors.Wrapf(ErrFrameTooLarge, "%s body of %d bytes, limit %d", h.tag, n, maxBody)
	}
	h.args = h.args[:len(h.args)-1]
	h.bodyLen = n
	return h, nil
}
