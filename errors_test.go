package beanstalk

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestProtocolError_Error(t *testing.T) {
	tests := []struct {
		err  *ProtocolError
		want string
	}{
		{&ProtocolError{Tag: "NOT_FOUND"}, "NOT_FOUND"},
		{&ProtocolError{Verb: "delete", Tag: "NOT_FOUND"}, "delete: NOT_FOUND"},
		{&ProtocolError{Verb: "put", Tag: "BURIED", Args: []string{"12"}}, "put: BURIED 12"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestProtocolError_Is(t *testing.T) {
	err := pkgerrors.Wrap(&ProtocolError{Verb: "reserve", Tag: "DEADLINE_SOON"}, "worker")

	if !errors.Is(err, ErrDeadlineSoon) {
		t.Error("errors.Is(err, ErrDeadlineSoon) = false")
	}
	if errors.Is(err, ErrTimedOut) {
		t.Error("errors.Is(err, ErrTimedOut) = true")
	}
	if Tag(err) != "DEADLINE_SOON" {
		t.Errorf("Tag = %q, want DEADLINE_SOON", Tag(err))
	}
	if Tag(ErrConnectionLost) != "" {
		t.Errorf("Tag(ErrConnectionLost) = %q, want empty", Tag(ErrConnectionLost))
	}
}

func TestErrConnectionLost_Message(t *testing.T) {
	if ErrConnectionLost.Error() != "beanstalk closed connection" {
		t.Errorf("message = %q", ErrConnectionLost.Error())
	}
}
