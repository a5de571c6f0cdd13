package beanstalk

import (
	"slices"
	"strconv"
	"time"
)

// DefaultPriority is used by put, release and bury unless overridden.
// Smaller values are more urgent.
const DefaultPriority uint32 = 1 << 16

// DefaultTTR is the time-to-run used by put unless overridden.
const DefaultTTR = 60 * time.Second

// command describes a verb that is encoded generically: the verb followed by
// the caller's arguments on one line, with no body.
type command struct {
	verb   string
	expect string
}

// commands is the table consulted by Do. put, release, bury and the two
// reserve forms have their own encoders and are not listed here.
var commands = map[string]command{
	"use":                {"use", "USING"},
	"watch":              {"watch", "WATCHING"},
	"ignore":             {"ignore", "WATCHING"},
	"delete":             {"delete", "DELETED"},
	"touch":              {"touch", "TOUCHED"},
	"kick":               {"kick", "KICKED"},
	"kick-job":           {"kick-job", "KICKED"},
	"reserve-job":        {"reserve-job", "RESERVED"},
	"peek":               {"peek", "FOUND"},
	"peek-ready":         {"peek-ready", "FOUND"},
	"peek-delayed":       {"peek-delayed", "FOUND"},
	"peek-buried":        {"peek-buried", "FOUND"},
	"list-tube-used":     {"list-tube-used", "USING"},
	"pause-tube":         {"pause-tube", "PAUSED"},
	"stats":              {"stats", "OK"},
	"stats-tube":         {"stats-tube", "OK"},
	"stats-job":          {"stats-job", "OK"},
	"list-tubes":         {"list-tubes", "OK"},
	"list-tubes-watched": {"list-tubes-watched", "OK"},
	// quit gets no reply; the server just closes the connection.
	"quit": {"quit", ""},
}

// request is an encoded command ready to be written.
type request struct {
	verb   string
	expect string
	args   []string
	wire   []byte
}

func encodeLine(verb string, args ...string) []byte {
	n := len(verb) + len(crlf)
	for _, a := range args {
		n += len(a) + 1
	}
	b := make([]byte, 0, n)
	b = append(b, verb...)
	for _, a := range args {
		b = append(b, ' ')
		b = append(b, a...)
	}
	return append(b, crlf...)
}

func encodeGeneric(cmd command, args ...string) request {
	return request{verb: cmd.verb, expect: cmd.expect, args: args, wire: encodeLine(cmd.verb, args...)}
}

// encodePut lays out "put <pri> <delay> <ttr> <bytes>\r\n<body>\r\n".
// The body is length-prefixed and never scanned for delimiters.
func encodePut(body []byte, p jobParams) request {
	line := encodeLine("put",
		formatUint(uint64(p.priority)),
		formatSeconds(p.delay),
		formatSeconds(p.ttr),
		strconv.Itoa(len(body)),
	)
	wire := make([]byte, 0, len(line)+len(body)+len(crlf))
	wire = append(wire, line...)
	wire = append(wire, body...)
	wire = append(wire, crlf...)
	return request{verb: "put", expect: "INSERTED", wire: wire}
}

func encodeRelease(id uint64, p jobParams) request {
	return request{
		verb:   "release",
		expect: "RELEASED",
		wire:   encodeLine("release", formatUint(id), formatUint(uint64(p.priority)), formatSeconds(p.delay)),
	}
}

func encodeBury(id uint64, p jobParams) request {
	return request{
		verb:   "bury",
		expect: "BURIED",
		wire:   encodeLine("bury", formatUint(id), formatUint(uint64(p.priority))),
	}
}

// encodeReserve picks the plain form when timeout is negative and the timed
// form otherwise. Both expect RESERVED.
func encodeReserve(timeout time.Duration) request {
	if timeout < 0 {
		return request{verb: "reserve", expect: "RESERVED", wire: encodeLine("reserve")}
	}
	return request{
		verb:   "reserve-with-timeout",
		expect: "RESERVED",
		wire:   encodeLine("reserve-with-timeout", formatSeconds(timeout)),
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// formatSeconds truncates d to whole seconds, the resolution of the protocol.
func formatSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatInt(int64(d/time.Second), 10)
}

// jobParams holds the knobs of put, release and bury.
type jobParams struct {
	priority uint32
	delay    time.Duration
	ttr      time.Duration
}

func newJobParams(opts []JobOption) jobParams {
	p := jobParams{priority: DefaultPriority, ttr: DefaultTTR}
	for _, o := range opts {
		o(&p)
	}
	return p
}

// JobOption configures put, release and bury. Options a verb has no field
// for are ignored (bury has no delay, release and bury have no ttr).
type JobOption func(*jobParams)

// Priority sets the job priority; 0 is the most urgent.
func Priority(pri uint32) JobOption {
	return func(p *jobParams) {
		p.priority = pri
	}
}

// Delay keeps the job out of the ready queue for d, in whole seconds.
func Delay(d time.Duration) JobOption {
	return func(p *jobParams) {
		p.delay = d
	}
}

// TTR sets how long a reserved job may be held before the server releases it.
func TTR(d time.Duration) JobOption {
	return func(p *jobParams) {
		p.ttr = d
	}
}

// Verbs lists the verbs Do accepts, sorted.
func Verbs() []string {
	verbs := make([]string, 0, len(commands))
	for v := range commands {
		verbs = append(verbs, v)
	}
	slices.Sort(verbs)
	return verbs
}
