package beanstalk

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// YAMLDecoder decodes document replies into generic YAML values
// (map[string]any for stats, []any for tube listings).
var YAMLDecoder Decoder = DecoderFunc(func(body []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
})

// Document is the body of a stats or listing reply.
type Document struct {
	// Raw is the YAML text as sent by the server.
	Raw []byte
	// Value is the result of the configured Decoder, or nil without one.
	Value any
}

// Decode unmarshals the raw YAML into v.
func (d *Document) Decode(v any) error {
	if err := yaml.Unmarshal(d.Raw, v); err != nil {
		return errors.Wrap(err, "decode document")
	}
	return nil
}

// JobStats is the reply to stats-job.
type JobStats struct {
	ID       uint64 `yaml:"id"`
	Tube     string `yaml:"tube"`
	State    string `yaml:"state"`
	Priority uint32 `yaml:"pri"`
	Age      int64  `yaml:"age"`
	Delay    int64  `yaml:"delay"`
	TTR      int64  `yaml:"ttr"`
	TimeLeft int64  `yaml:"time-left"`
	File     int    `yaml:"file"`
	Reserves int    `yaml:"reserves"`
	Timeouts int    `yaml:"timeouts"`
	Releases int    `yaml:"releases"`
	Buries   int    `yaml:"buries"`
	Kicks    int    `yaml:"kicks"`
}

// TubeStats is the reply to stats-tube.
type TubeStats struct {
	Name                string `yaml:"name"`
	CurrentJobsUrgent   int    `yaml:"current-jobs-urgent"`
	CurrentJobsReady    int    `yaml:"current-jobs-ready"`
	CurrentJobsReserved int    `yaml:"current-jobs-reserved"`
	CurrentJobsDelayed  int    `yaml:"current-jobs-delayed"`
	CurrentJobsBuried   int    `yaml:"current-jobs-buried"`
	TotalJobs           int    `yaml:"total-jobs"`
	CurrentUsing        int    `yaml:"current-using"`
	CurrentWatching     int    `yaml:"current-watching"`
	CurrentWaiting      int    `yaml:"current-waiting"`
	CmdDelete           int    `yaml:"cmd-delete"`
	CmdPauseTube        int    `yaml:"cmd-pause-tube"`
	Pause               int64  `yaml:"pause"`
	PauseTimeLeft       int64  `yaml:"pause-time-left"`
}
