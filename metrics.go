package beanstalk

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// clientSeq numbers clients for the per-client gauge label.
var clientSeq atomic.Uint64

// clientMetrics exposes counters for one client, labelled by server address
// so several clients can share a set. Clients of the same address add up in
// the counters; the pending gauge also carries a client label because a
// gauge cannot be summed that way.
type clientMetrics struct {
	set  *metrics.Set
	addr string
	id   uint64

	frames          *metrics.Counter
	protocolErrors  *metrics.Counter
	connectFailures *metrics.Counter
	connects        *metrics.Counter
	reconnects      *metrics.Counter
	lostRequests    *metrics.Counter
}

func newClientMetrics(set *metrics.Set, addr string, pending func() int) *clientMetrics {
	m := &clientMetrics{set: set, addr: addr, id: clientSeq.Add(1)}
	m.frames = set.GetOrCreateCounter(m.name("beanstalk_frames_total"))
	m.protocolErrors = set.GetOrCreateCounter(m.name("beanstalk_protocol_errors_total"))
	m.connectFailures = set.GetOrCreateCounter(m.name("beanstalk_connect_failures_total"))
	m.connects = set.GetOrCreateCounter(m.name("beanstalk_connects_total"))
	m.reconnects = set.GetOrCreateCounter(m.name("beanstalk_reconnects_total"))
	m.lostRequests = set.GetOrCreateCounter(m.name("beanstalk_lost_requests_total"))
	set.GetOrCreateGauge(fmt.Sprintf(`beanstalk_pending_requests{addr=%q,client="%d"}`, addr, m.id), func() float64 {
		return float64(pending())
	})
	return m
}

func (m *clientMetrics) name(metric string) string {
	return fmt.Sprintf(`%s{addr=%q}`, metric, m.addr)
}

// command counts one issued command.
func (m *clientMetrics) command(verb string) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`beanstalk_commands_total{addr=%q,verb=%q}`, m.addr, verb)).Inc()
}

// WriteMetrics writes the client's metrics in Prometheus text format.
func (c *Client) WriteMetrics(w io.Writer) {
	c.metrics.set.WritePrometheus(w)
}
