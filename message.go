package beanstalk

import (
	"strconv"

	"github.com/pkg/errors"
)

// Decoder turns the body of a document reply (stats and tube listings) into a
// structured value. It is invoked on the read loop while the frame is being
// rebuilt, so implementations should be pure and fast.
//
// A decode failure is delivered to the command that issued the request; the
// connection itself is unaffected.
type Decoder interface {
	Decode(body []byte) (any, error)
}

// DecoderFunc adapts an ordinary function to the Decoder interface.
type DecoderFunc func(body []byte) (any, error)

// Decode calls f(body).
func (f DecoderFunc) Decode(body []byte) (any, error) {
	return f(body)
}

// Job is a reserved or peeked job.
type Job struct {
	ID   uint64
	Body []byte
}

// jobFromFrame reads a RESERVED or FOUND reply: "<tag> <id> <bytes>" plus body.
func jobFromFrame(f *Frame) (*Job, error) {
	if len(f.Args) != 1 {
		return nil, errors.Wrapf(ErrMalformedFrame, "%s with %d arguments", f.Tag, len(f.Args))
	}
	id, err := parseID(f.Args[0])
	if err != nil {
		return nil, err
	}
	return &Job{ID: id, Body: f.Body}, nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedFrame, "job id %q", s)
	}
	return id, nil
}

func parseCount(f *Frame) (int, error) {
	if len(f.Args) != 1 {
		return 0, errors.Wrapf(ErrMalformedFrame, "%s with %d arguments", f.Tag, len(f.Args))
	}
	n, err := strconv.Atoi(f.Args[0])
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedFrame, "count %q", f.Args[0])
	}
	return n, nil
}
