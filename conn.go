package beanstalk

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// session is one live connection: the socket, its frame reader and the queue
// of commands waiting for a reply. A reconnect replaces the session, it is
// never reused.
type session struct {
	conn    net.Conn
	reader  *frameReader
	pending pendingQueue
	logger  Logger

	onFrame      func(*Frame)
	readSize     int
	writeTimeout time.Duration

	sendMsg chan []byte

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// established is set once the session was handed to callers; only such
	// sessions trigger a reconnect when they drop.
	established bool

	closeOnce sync.Once
}

func newSession(conn net.Conn, opts options) *session {
	base, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(base)
	return &session{
		conn:     conn,
		reader:       newFrameReader(opts.decoder, opts.maxFrameSize),
		logger:       opts.logger,
		readSize:     opts.readBufferSize,
		writeTimeout: opts.writeTimeout,
		sendMsg:      make(chan []byte, opts.bufferSize),
		group:        group,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// run starts the read and write loops and blocks until either fails or the
// session is closed. The socket is closed when run returns.
func (s *session) run() error {
	s.logger.Debug("session started", "addr", s.addr())

	s.group.Go(s.readLoop)
	s.group.Go(s.writeLoop)
	s.group.Go(func() error {
		// Unblocks the read loop when anything else ends the session.
		<-s.ctx.Done()
		s.closeConn()
		return nil
	})

	err := s.group.Wait()
	s.cancel()
	return err
}

// close ends the session from the client side.
func (s *session) close() {
	s.cancel()
	s.closeConn()
}

func (s *session) closeConn() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (s *session) addr() net.Addr {
	return s.conn.RemoteAddr()
}

// send queues encoded bytes for the writer. It must be called with the
// client lock held, right after the matching push onto the pending queue.
// A dying session drops the bytes; the pending entry is then completed by
// the close path.
func (s *session) send(wire []byte) {
	select {
	case s.sendMsg <- wire:
	case <-s.ctx.Done():
	}
}

// readLoop feeds whatever arrives into the frame reader and hands every
// complete frame to onFrame. Several frames may come out of one read and one
// frame may need many reads. A reply the reader cannot frame ends the
// session, since every later reply would be matched to the wrong request.
func (s *session) readLoop() error {
	buf := make([]byte, s.readSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.reader.Feed(buf[:n])
			for {
				f, ok := s.reader.Next()
				if !ok {
					break
				}
				s.onFrame(f)
			}
			if rerr := s.reader.Err(); rerr != nil {
				s.logger.Warn("unreadable reply, dropping connection", "addr", s.addr(), "error", rerr)
				return rerr
			}
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return s.ctx.Err()
			}
			s.logger.Debug("read error", "addr", s.addr(), "error", err)
			return errors.Wrap(err, "read")
		}
	}
}

// writeLoop writes queued commands in the order they were queued.
func (s *session) writeLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case data := <-s.sendMsg:
			if s.writeTimeout > 0 {
				if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
					return errors.Wrap(err, "set write deadline")
				}
			}
			if _, err := s.conn.Write(data); err != nil {
				s.logger.Debug("write error", "addr", s.addr(), "error", err)
				return errors.Wrap(err, "write")
			}
		}
	}
}
