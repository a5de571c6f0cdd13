package beanstalktest

import (
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Zereker/beanstalk"
	"gopkg.in/yaml.v3"
)

// Job states as reported by stats-job.
const (
	stateReady    = "ready"
	stateDelayed  = "delayed"
	stateReserved = "reserved"
	stateBuried   = "buried"
)

type fakeJob struct {
	id       uint64
	tube     string
	pri      uint32
	body     []byte
	state    string
	ttr      int64
	readyAt  time.Time
	created  time.Time
	owner    *fakeConn
	reserves int
	releases int
	buries   int
	kicks    int
}

// fakeConn is the per-connection state the server keeps.
type fakeConn struct {
	peer    *Peer
	used    string
	watched map[string]bool
}

// Fake is an in-memory beanstalkd covering the commands the client speaks.
// It has no persistence and never expires a reservation on its own.
type Fake struct {
	mu     sync.Mutex
	nextID uint64
	jobs   map[uint64]*fakeJob
	paused map[string]time.Time
	tubes  map[string]bool
	now    func() time.Time
}

// NewFake returns an empty server with only the default tube.
func NewFake() *Fake {
	return &Fake{
		jobs:   make(map[uint64]*fakeJob),
		paused: make(map[string]time.Time),
		tubes:  map[string]bool{beanstalk.DefaultTube: true},
		now:    time.Now,
	}
}

// Handle serves one client connection until it closes or sends quit.
func (f *Fake) Handle(conn *net.TCPConn) {
	peer := NewPeer(conn)
	defer peer.Close()

	fc := &fakeConn{
		peer:    peer,
		used:    beanstalk.DefaultTube,
		watched: map[string]bool{beanstalk.DefaultTube: true},
	}
	defer f.drop(fc)

	for {
		cmd, err := peer.ReadCommand()
		if err != nil {
			return
		}
		if cmd.Verb == "quit" {
			return
		}
		reply := f.exec(fc, cmd)
		if reply == nil {
			return
		}
		if err := peer.Write(reply); err != nil {
			return
		}
	}
}

// drop releases every job reserved by a closed connection.
func (f *Fake) drop(fc *fakeConn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.owner == fc {
			j.owner = nil
			j.state = stateReady
		}
	}
}

// Jobs returns the number of jobs the server holds.
func (f *Fake) Jobs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func line(parts ...string) []byte {
	b := make([]byte, 0, 32)
	for i, p := range parts {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, p...)
	}
	return append(b, "\r\n"...)
}

func fmtID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// jobVerbs take a job id as their first argument.
var jobVerbs = map[string]bool{
	"delete": true, "touch": true, "release": true, "bury": true,
	"kick-job": true, "peek": true, "reserve-job": true, "stats-job": true,
}

var tubeVerbs = map[string]bool{
	"use": true, "watch": true, "ignore": true,
	"kick": true, "stats-tube": true, "pause-tube": true,
}

func (f *Fake) exec(fc *fakeConn, cmd *Command) []byte {
	switch cmd.Verb {
	case "put":
		return f.put(fc, cmd)
	case "reserve":
		return f.reserve(fc, -1)
	case "reserve-with-timeout":
		if len(cmd.Args) != 1 {
			return line("BAD_FORMAT")
		}
		secs, err := strconv.Atoi(cmd.Args[0])
		if err != nil || secs < 0 {
			return line("BAD_FORMAT")
		}
		return f.reserve(fc, time.Duration(secs)*time.Second)
	case "list-tube-used":
		return line("USING", fc.used)
	case "list-tubes", "list-tubes-watched":
		return f.listTubes(fc, cmd.Verb == "list-tubes-watched")
	case "stats":
		return f.stats()
	case "peek-ready", "peek-delayed", "peek-buried":
		return f.peekState(fc, cmd.Verb[len("peek-"):])
	}

	if !jobVerbs[cmd.Verb] && !tubeVerbs[cmd.Verb] {
		return line("UNKNOWN_COMMAND")
	}
	// pause-tube, release and bury check their extra arguments below.
	if len(cmd.Args) == 0 {
		return line("BAD_FORMAT")
	}
	arg := cmd.Args[0]

	switch cmd.Verb {
	case "use":
		fc.used = arg
		f.touchTube(arg)
		return line("USING", arg)
	case "watch":
		fc.watched[arg] = true
		f.touchTube(arg)
		return line("WATCHING", strconv.Itoa(len(fc.watched)))
	case "ignore":
		if !fc.watched[arg] {
			return line("WATCHING", strconv.Itoa(len(fc.watched)))
		}
		if len(fc.watched) == 1 {
			return line("NOT_IGNORED")
		}
		delete(fc.watched, arg)
		return line("WATCHING", strconv.Itoa(len(fc.watched)))
	case "kick":
		bound, err := strconv.Atoi(arg)
		if err != nil || bound < 0 {
			return line("BAD_FORMAT")
		}
		return line("KICKED", strconv.Itoa(f.kick(fc.used, bound)))
	case "stats-tube":
		return f.statsTube(arg)
	case "pause-tube":
		if len(cmd.Args) != 2 {
			return line("BAD_FORMAT")
		}
		secs, err := strconv.Atoi(cmd.Args[1])
		if err != nil {
			return line("BAD_FORMAT")
		}
		return f.pause(arg, secs)
	}

	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return line("BAD_FORMAT")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return line("NOT_FOUND")
	}
	f.promote(j)

	switch cmd.Verb {
	case "delete":
		if j.state == stateReserved && j.owner != fc {
			return line("NOT_FOUND")
		}
		delete(f.jobs, id)
		return line("DELETED")
	case "touch":
		if j.state != stateReserved || j.owner != fc {
			return line("NOT_FOUND")
		}
		return line("TOUCHED")
	case "release":
		if len(cmd.Args) != 3 {
			return line("BAD_FORMAT")
		}
		if j.state != stateReserved || j.owner != fc {
			return line("NOT_FOUND")
		}
		pri, err1 := strconv.ParseUint(cmd.Args[1], 10, 32)
		delay, err2 := strconv.Atoi(cmd.Args[2])
		if err1 != nil || err2 != nil {
			return line("BAD_FORMAT")
		}
		j.pri, j.owner, j.releases = uint32(pri), nil, j.releases+1
		j.state = stateReady
		if delay > 0 {
			j.state = stateDelayed
			j.readyAt = f.now().Add(time.Duration(delay) * time.Second)
		}
		return line("RELEASED")
	case "bury":
		if len(cmd.Args) != 2 {
			return line("BAD_FORMAT")
		}
		if j.state != stateReserved || j.owner != fc {
			return line("NOT_FOUND")
		}
		pri, err := strconv.ParseUint(cmd.Args[1], 10, 32)
		if err != nil {
			return line("BAD_FORMAT")
		}
		j.pri, j.owner, j.state, j.buries = uint32(pri), nil, stateBuried, j.buries+1
		return line("BURIED")
	case "kick-job":
		if j.state != stateBuried && j.state != stateDelayed {
			return line("NOT_FOUND")
		}
		j.state, j.kicks = stateReady, j.kicks+1
		return line("KICKED")
	case "peek":
		return EncodeBody("FOUND "+fmtID(j.id), j.body)
	case "reserve-job":
		if j.state == stateReserved {
			return line("NOT_FOUND")
		}
		f.reserveLocked(fc, j)
		return EncodeBody("RESERVED "+fmtID(j.id), j.body)
	case "stats-job":
		return f.statsJob(j)
	}
	return line("UNKNOWN_COMMAND")
}

func (f *Fake) touchTube(tube string) {
	f.mu.Lock()
	f.tubes[tube] = true
	f.mu.Unlock()
}

func (f *Fake) put(fc *fakeConn, cmd *Command) []byte {
	pri, err1 := strconv.ParseUint(cmd.Args[0], 10, 32)
	delay, err2 := strconv.Atoi(cmd.Args[1])
	ttr, err3 := strconv.ParseInt(cmd.Args[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return line("BAD_FORMAT")
	}
	if ttr < 1 {
		ttr = 1
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	j := &fakeJob{
		id:      f.nextID,
		tube:    fc.used,
		pri:     uint32(pri),
		body:    cmd.Body,
		state:   stateReady,
		ttr:     ttr,
		created: f.now(),
	}
	if delay > 0 {
		j.state = stateDelayed
		j.readyAt = f.now().Add(time.Duration(delay) * time.Second)
	}
	f.jobs[j.id] = j
	f.tubes[j.tube] = true
	return line("INSERTED", fmtID(j.id))
}

// promote turns delayed jobs whose delay passed into ready ones.
func (f *Fake) promote(j *fakeJob) {
	if j.state == stateDelayed && !f.now().Before(j.readyAt) {
		j.state = stateReady
	}
}

// candidates returns jobs of the tubes in state, most urgent first.
func (f *Fake) candidates(tubes map[string]bool, state string) []*fakeJob {
	var out []*fakeJob
	for _, j := range f.jobs {
		f.promote(j)
		if j.state == state && tubes[j.tube] {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if state == stateDelayed {
			return out[a].readyAt.Before(out[b].readyAt)
		}
		if out[a].pri != out[b].pri {
			return out[a].pri < out[b].pri
		}
		return out[a].id < out[b].id
	})
	return out
}

func (f *Fake) reserveLocked(fc *fakeConn, j *fakeJob) {
	j.state = stateReserved
	j.owner = fc
	j.reserves++
}

// reserve polls the watched tubes until a job shows up or the client goes
// away. A negative timeout waits forever.
func (f *Fake) reserve(fc *fakeConn, timeout time.Duration) []byte {
	deadline := f.now().Add(timeout)
	for {
		f.mu.Lock()
		ready := make(map[string]bool, len(fc.watched))
		for tube := range fc.watched {
			if until, ok := f.paused[tube]; ok && f.now().Before(until) {
				continue
			}
			ready[tube] = true
		}
		if jobs := f.candidates(ready, stateReady); len(jobs) > 0 {
			j := jobs[0]
			f.reserveLocked(fc, j)
			f.mu.Unlock()
			return EncodeBody("RESERVED "+fmtID(j.id), j.body)
		}
		f.mu.Unlock()

		if timeout >= 0 && !f.now().Before(deadline) {
			return line("TIMED_OUT")
		}
		if !fc.peer.Alive() {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *Fake) peekState(fc *fakeConn, state string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := f.candidates(map[string]bool{fc.used: true}, state)
	if len(jobs) == 0 {
		return line("NOT_FOUND")
	}
	return EncodeBody("FOUND "+fmtID(jobs[0].id), jobs[0].body)
}

func (f *Fake) kick(tube string, bound int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	tubes := map[string]bool{tube: true}
	jobs := f.candidates(tubes, stateBuried)
	if len(jobs) == 0 {
		jobs = f.candidates(tubes, stateDelayed)
	}
	if len(jobs) > bound {
		jobs = jobs[:bound]
	}
	for _, j := range jobs {
		j.state = stateReady
		j.kicks++
	}
	return len(jobs)
}

func (f *Fake) pause(tube string, secs int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tubes[tube] {
		return line("NOT_FOUND")
	}
	f.paused[tube] = f.now().Add(time.Duration(secs) * time.Second)
	return line("PAUSED")
}

func document(v any) []byte {
	out, err := yaml.Marshal(v)
	if err != nil {
		return line("INTERNAL_ERROR")
	}
	return EncodeBody("OK", append([]byte("---\n"), out...))
}

func (f *Fake) listTubes(fc *fakeConn, watchedOnly bool) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.tubes
	if watchedOnly {
		src = fc.watched
	}
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)
	return document(names)
}

func (f *Fake) statsJob(j *fakeJob) []byte {
	st := beanstalk.JobStats{
		ID:       j.id,
		Tube:     j.tube,
		State:    j.state,
		Priority: j.pri,
		Age:      int64(f.now().Sub(j.created) / time.Second),
		TTR:      j.ttr,
		Reserves: j.reserves,
		Releases: j.releases,
		Buries:   j.buries,
		Kicks:    j.kicks,
	}
	return document(st)
}

func (f *Fake) statsTube(tube string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tubes[tube] {
		return line("NOT_FOUND")
	}
	st := beanstalk.TubeStats{Name: tube}
	for _, j := range f.jobs {
		if j.tube != tube {
			continue
		}
		f.promote(j)
		st.TotalJobs++
		switch j.state {
		case stateReady:
			st.CurrentJobsReady++
		case stateReserved:
			st.CurrentJobsReserved++
		case stateDelayed:
			st.CurrentJobsDelayed++
		case stateBuried:
			st.CurrentJobsBuried++
		}
	}
	return document(st)
}

func (f *Fake) stats() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int{}
	for _, j := range f.jobs {
		f.promote(j)
		counts["current-jobs-"+j.state]++
	}
	return document(map[string]any{
		"current-jobs-ready":    counts["current-jobs-ready"],
		"current-jobs-reserved": counts["current-jobs-reserved"],
		"current-jobs-delayed":  counts["current-jobs-delayed"],
		"current-jobs-buried":   counts["current-jobs-buried"],
		"current-tubes":         len(f.tubes),
		"total-jobs":            f.nextID,
	})
}
