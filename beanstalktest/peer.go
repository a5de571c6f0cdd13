package beanstalktest

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Command is one request read from a client.
type Command struct {
	Verb string
	Args []string
	// Body is set for put only.
	Body []byte
}

// Peer reads requests and writes raw replies on one connection.
type Peer struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewPeer wraps an accepted connection.
func NewPeer(conn net.Conn) *Peer {
	return &Peer{conn: conn, r: bufio.NewReader(conn)}
}

// ReadCommand reads the next request. The body of a put is read by its
// declared length, so it may contain "\r\n".
func (p *Peer) ReadCommand() (*Command, error) {
	line, err := p.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(line, "\r\n") {
		return nil, errors.Errorf("request %q not terminated by CRLF", line)
	}

	fields := strings.Split(strings.TrimSuffix(line, "\r\n"), " ")
	cmd := &Command{Verb: fields[0], Args: fields[1:]}
	if cmd.Verb != "put" {
		return cmd, nil
	}

	if len(cmd.Args) != 4 {
		return nil, errors.Errorf("put with %d arguments", len(cmd.Args))
	}
	n, err := strconv.Atoi(cmd.Args[3])
	if err != nil || n < 0 {
		return nil, errors.Errorf("put body length %q", cmd.Args[3])
	}
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return nil, errors.Wrap(err, "read put body")
	}
	if string(buf[n:]) != "\r\n" {
		return nil, errors.New("put body not terminated by CRLF")
	}
	cmd.Body = buf[:n]
	return cmd, nil
}

// Reply writes one header line.
func (p *Peer) Reply(line string) error {
	return p.Write([]byte(line + "\r\n"))
}

// ReplyBody writes "<line> <len(body)>\r\n<body>\r\n".
func (p *Peer) ReplyBody(line string, body []byte) error {
	return p.Write(EncodeBody(line, body))
}

// Write sends raw bytes, letting tests split replies at arbitrary points.
func (p *Peer) Write(b []byte) error {
	_, err := p.conn.Write(b)
	return err
}

// Alive reports whether the client is still connected. Pending input is
// left buffered for the next ReadCommand.
func (p *Peer) Alive() bool {
	if p.r.Buffered() > 0 {
		return true
	}
	_ = p.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	defer func() { _ = p.conn.SetReadDeadline(time.Time{}) }()

	_, err := p.r.Peek(1)
	if err == nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Close closes the connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// EncodeBody lays out a body-bearing reply.
func EncodeBody(line string, body []byte) []byte {
	head := line + " " + strconv.Itoa(len(body)) + "\r\n"
	b := make([]byte, 0, len(head)+len(body)+2)
	b = append(b, head...)
	b = append(b, body...)
	return append(b, "\r\n"...)
}
