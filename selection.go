package beanstalk

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultTube is the tube every new connection uses and watches.
const DefaultTube = "default"

// selection mirrors the tube state the server keeps per connection, as
// observed through successful use, watch and ignore replies.
type selection struct {
	mu      sync.Mutex
	used    string
	watched *xsync.MapOf[string, struct{}]
}

func newSelection() *selection {
	s := &selection{watched: xsync.NewMapOf[string, struct{}]()}
	s.reset()
	return s
}

// reset returns to what the server assumes for a fresh connection.
func (s *selection) reset() {
	s.mu.Lock()
	s.used = DefaultTube
	s.mu.Unlock()
	s.watched.Clear()
	s.watched.Store(DefaultTube, struct{}{})
}

// observe records a successful generic command.
func (s *selection) observe(verb string, args []string) {
	if len(args) != 1 {
		return
	}
	switch verb {
	case "use":
		s.mu.Lock()
		s.used = args[0]
		s.mu.Unlock()
	case "watch":
		s.watched.Store(args[0], struct{}{})
	case "ignore":
		s.watched.Delete(args[0])
	}
}

// Used returns the tube last selected with use.
func (s *selection) Used() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Watched reports whether tube is in the watch list.
func (s *selection) Watched(tube string) bool {
	_, ok := s.watched.Load(tube)
	return ok
}

// replay returns the commands that bring a fresh connection to this state.
// Watches go before ignoring the default tube, since the server refuses to
// drop the last watched tube.
func (s *selection) replay() []request {
	var reqs []request
	if used := s.Used(); used != DefaultTube {
		reqs = append(reqs, encodeGeneric(commands["use"], used))
	}
	s.watched.Range(func(tube string, _ struct{}) bool {
		if tube != DefaultTube {
			reqs = append(reqs, encodeGeneric(commands["watch"], tube))
		}
		return true
	})
	if !s.Watched(DefaultTube) {
		reqs = append(reqs, encodeGeneric(commands["ignore"], DefaultTube))
	}
	return reqs
}
