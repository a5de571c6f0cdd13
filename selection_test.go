package beanstalk

import (
	"testing"
)

func wires(reqs []request) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = string(r.wire)
	}
	return out
}

func TestSelection_Defaults(t *testing.T) {
	s := newSelection()

	if s.Used() != DefaultTube {
		t.Errorf("Used = %q, want %q", s.Used(), DefaultTube)
	}
	if !s.Watched(DefaultTube) {
		t.Error("default tube not watched")
	}
	if reqs := s.replay(); len(reqs) != 0 {
		t.Errorf("replay = %q, want nothing", wires(reqs))
	}
}

func TestSelection_Observe(t *testing.T) {
	s := newSelection()
	s.observe("use", []string{"emails"})
	s.observe("watch", []string{"emails"})
	s.observe("ignore", []string{DefaultTube})
	s.observe("delete", []string{"1"})

	if s.Used() != "emails" {
		t.Errorf("Used = %q, want emails", s.Used())
	}
	if !s.Watched("emails") || s.Watched(DefaultTube) {
		t.Error("watch list not tracked")
	}

	got := wires(s.replay())
	want := []string{"use emails\r\n", "watch emails\r\n", "ignore default\r\n"}
	if len(got) != len(want) {
		t.Fatalf("replay = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("replay[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSelection_ReplayKeepsDefault(t *testing.T) {
	s := newSelection()
	s.observe("watch", []string{"a"})

	got := wires(s.replay())
	if len(got) != 1 || got[0] != "watch a\r\n" {
		t.Errorf("replay = %q, want [watch a]", got)
	}
}

func TestSelection_Reset(t *testing.T) {
	s := newSelection()
	s.observe("use", []string{"x"})
	s.observe("watch", []string{"y"})
	s.reset()

	if s.Used() != DefaultTube || s.Watched("y") || !s.Watched(DefaultTube) {
		t.Error("reset did not restore the defaults")
	}
}
