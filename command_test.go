package beanstalk

import (
	"reflect"
	"testing"
	"time"
)

func TestEncodeGeneric(t *testing.T) {
	tests := []struct {
		verb string
		args []string
		want string
	}{
		{"use", []string{"test"}, "use test\r\n"},
		{"watch", []string{"emails"}, "watch emails\r\n"},
		{"delete", []string{"42"}, "delete 42\r\n"},
		{"pause-tube", []string{"test", "10"}, "pause-tube test 10\r\n"},
		{"stats", nil, "stats\r\n"},
		{"quit", nil, "quit\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.verb, func(t *testing.T) {
			req := encodeGeneric(commands[tt.verb], tt.args...)
			if string(req.wire) != tt.want {
				t.Errorf("wire = %q, want %q", req.wire, tt.want)
			}
			if req.expect != commands[tt.verb].expect {
				t.Errorf("expect = %q, want %q", req.expect, commands[tt.verb].expect)
			}
		})
	}
}

func TestCommandTable(t *testing.T) {
	want := map[string]string{
		"use":                "USING",
		"watch":              "WATCHING",
		"ignore":             "WATCHING",
		"delete":             "DELETED",
		"touch":              "TOUCHED",
		"kick":               "KICKED",
		"kick-job":           "KICKED",
		"peek":               "FOUND",
		"peek-ready":         "FOUND",
		"peek-delayed":       "FOUND",
		"peek-buried":        "FOUND",
		"stats":              "OK",
		"stats-job":          "OK",
		"stats-tube":         "OK",
		"list-tubes":         "OK",
		"list-tubes-watched": "OK",
		"list-tube-used":     "USING",
		"pause-tube":         "PAUSED",
		"reserve-job":        "RESERVED",
		"quit":               "",
	}
	for verb, expect := range want {
		cmd, ok := commands[verb]
		if !ok {
			t.Errorf("%s missing from the command table", verb)
			continue
		}
		if cmd.expect != expect {
			t.Errorf("%s expects %q, want %q", verb, cmd.expect, expect)
		}
	}
	if len(Verbs()) != len(commands) {
		t.Errorf("Verbs() has %d entries, table has %d", len(Verbs()), len(commands))
	}
}

func TestEncodePut(t *testing.T) {
	body := []byte("a\r\nb")
	req := encodePut(body, newJobParams([]JobOption{Priority(0), TTR(5 * time.Second)}))

	want := "put 0 0 5 4\r\na\r\nb\r\n"
	if string(req.wire) != want {
		t.Errorf("wire = %q, want %q", req.wire, want)
	}
	if req.expect != "INSERTED" {
		t.Errorf("expect = %q, want INSERTED", req.expect)
	}
}

func TestEncodePut_Defaults(t *testing.T) {
	req := encodePut([]byte("hello"), newJobParams(nil))

	want := "put 65536 0 60 5\r\nhello\r\n"
	if string(req.wire) != want {
		t.Errorf("wire = %q, want %q", req.wire, want)
	}
}

func TestEncodePut_EmptyBody(t *testing.T) {
	req := encodePut(nil, newJobParams(nil))

	want := "put 65536 0 60 0\r\n\r\n"
	if string(req.wire) != want {
		t.Errorf("wire = %q, want %q", req.wire, want)
	}
}

func TestEncodeRelease(t *testing.T) {
	req := encodeRelease(7, newJobParams([]JobOption{Priority(10), Delay(1500 * time.Millisecond)}))

	if string(req.wire) != "release 7 10 1\r\n" {
		t.Errorf("wire = %q", req.wire)
	}
	if req.expect != "RELEASED" {
		t.Errorf("expect = %q, want RELEASED", req.expect)
	}
}

func TestEncodeBury(t *testing.T) {
	req := encodeBury(7, newJobParams(nil))

	if string(req.wire) != "bury 7 65536\r\n" {
		t.Errorf("wire = %q", req.wire)
	}
	if req.expect != "BURIED" {
		t.Errorf("expect = %q, want BURIED", req.expect)
	}
}

func TestEncodeReserve(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		verb    string
		want    string
	}{
		{"blocking", -1, "reserve", "reserve\r\n"},
		{"poll", 0, "reserve-with-timeout", "reserve-with-timeout 0\r\n"},
		{"seconds", 2500 * time.Millisecond, "reserve-with-timeout", "reserve-with-timeout 2\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := encodeReserve(tt.timeout)
			if req.verb != tt.verb || string(req.wire) != tt.want {
				t.Errorf("got %s %q, want %s %q", req.verb, req.wire, tt.verb, tt.want)
			}
			if req.expect != "RESERVED" {
				t.Errorf("expect = %q, want RESERVED", req.expect)
			}
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0"},
		{999 * time.Millisecond, "0"},
		{time.Second, "1"},
		{90 * time.Second, "90"},
		{-time.Second, "0"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.d); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestVerbs_Sorted(t *testing.T) {
	verbs := Verbs()
	for i := 1; i < len(verbs); i++ {
		if verbs[i-1] >= verbs[i] {
			t.Fatalf("Verbs() not sorted at %d: %v", i, verbs)
		}
	}
}

func TestJobFromFrame(t *testing.T) {
	job, err := jobFromFrame(&Frame{Tag: "RESERVED", Args: []string{"12"}, Body: []byte("x")})
	if err != nil {
		t.Fatalf("jobFromFrame failed: %v", err)
	}
	if !reflect.DeepEqual(job, &Job{ID: 12, Body: []byte("x")}) {
		t.Errorf("job = %+v", job)
	}

	if _, err := jobFromFrame(&Frame{Tag: "RESERVED", Args: []string{"abc"}}); err == nil {
		t.Error("expected an error for a non-numeric id")
	}
}
