package observability

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/sajidur78/xedbg/internal/protocol/response"
	"github.com/sajidur78/xedbg/internal/protocol/session"
)

// Commander issues one command cycle.
type Commander interface {
	SendCommand(ctx context.Context, command string, throwOnServerError bool) (*response.Response, error)
}

// Metrics counts commands, pings and transferred bytes for one process. It
// satisfies session.Observer.
type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	pings           *prometheus.CounterVec
	transferBytes   *prometheus.CounterVec
	transfers       *prometheus.CounterVec

	mu   sync.Mutex
	seen map[session.Direction]uint64
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xedbg",
				Subsystem: "session",
				Name:      "commands_total",
				Help:      "Commands sent, by verb and reply status.",
			},
			[]string{"verb", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "xedbg",
				Subsystem: "session",
				Name:      "command_duration_seconds",
				Help:      "Command round trip in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"verb"},
		),
		pings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xedbg",
				Subsystem: "session",
				Name:      "pings_total",
				Help:      "Pings, by outcome.",
			},
			[]string{"success"},
		),
		transferBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xedbg",
				Subsystem: "transfer",
				Name:      "bytes_total",
				Help:      "Bytes moved by streaming reads and writes.",
			},
			[]string{"direction"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xedbg",
				Subsystem: "transfer",
				Name:      "started_total",
				Help:      "Streaming transfers started.",
			},
			[]string{"direction"},
		),
		seen: map[session.Direction]uint64{},
	}
	m.registry.MustRegister(m.commands, m.commandDuration, m.pings, m.transferBytes, m.transfers)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OnRead(p session.TransferProgress) {
	m.recordTransfer(p)
}

func (m *Metrics) OnWrite(p session.TransferProgress) {
	m.recordTransfer(p)
}

// recordTransfer turns cumulative progress into byte deltas.
func (m *Metrics) recordTransfer(p session.TransferProgress) {
	dir := p.Direction.String()
	m.mu.Lock()
	prev := m.seen[p.Direction]
	if p.First {
		prev = 0
		m.transfers.WithLabelValues(dir).Inc()
	}
	m.seen[p.Direction] = p.Transferred
	m.mu.Unlock()

	if p.Transferred > prev {
		m.transferBytes.WithLabelValues(dir).Add(float64(p.Transferred - prev))
	}
}

// RecordCommand counts one command cycle. A nil reply is counted as
// "disconnected", a failed cycle as "error".
func (m *Metrics) RecordCommand(command string, resp *response.Response, err error, took time.Duration) {
	verb, _, _ := strings.Cut(command, " ")
	verb = strings.ToLower(verb)
	status := "disconnected"
	switch {
	case resp != nil:
		status = fmt.Sprintf("%d", int(resp.Status))
	case err != nil:
		status = "error"
	}
	m.commands.WithLabelValues(verb, status).Inc()
	m.commandDuration.WithLabelValues(verb).Observe(took.Seconds())
}

func (m *Metrics) RecordPing(ok bool) {
	m.pings.WithLabelValues(fmt.Sprintf("%t", ok)).Inc()
}

// Instrument wraps next so every command cycle is counted.
func (m *Metrics) Instrument(next Commander) Commander {
	return &instrumented{next: next, metrics: m}
}

type instrumented struct {
	next    Commander
	metrics *Metrics
}

func (c *instrumented) SendCommand(ctx context.Context, command string, throwOnServerError bool) (*response.Response, error) {
	start := time.Now()
	resp, err := c.next.SendCommand(ctx, command, throwOnServerError)
	c.metrics.RecordCommand(command, resp, err, time.Since(start))
	return resp, err
}

// WriteSummary prints every non-zero counter as "name{labels} value".
func (m *Metrics) WriteSummary(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, metric := range mf.GetMetric() {
			v := metric.GetCounter().GetValue()
			if v == 0 {
				continue
			}
			if _, err := fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), labelString(metric.GetLabel()), v); err != nil {
				return err
			}
		}
	}
	return nil
}

func labelString(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, lp := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
