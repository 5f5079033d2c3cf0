// Package metrics exposes bus and simulated board counters to Prometheus.
package metrics

import (
	"errors"
	"math/bits"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iox16/core"
	"iox16/host/bus"
	"iox16/protocol"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the /metrics HTTP handler of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// BusMetrics counts master transactions.
type BusMetrics struct {
	Transactions *prometheus.CounterVec   // labels: command, result
	Latency      *prometheus.HistogramVec // labels: command
}

// NewBusMetrics registers and returns the master metrics.
func NewBusMetrics(reg prometheus.Registerer) *BusMetrics {
	m := &BusMetrics{
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iox16_bus_transactions_total",
			Help: "Bus transactions by command and result.",
		}, []string{"command", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iox16_bus_transaction_seconds",
			Help:    "Bus transaction duration including retries.",
			Buckets: []float64{.001, .002, .005, .01, .02, .05, .1, .2},
		}, []string{"command"}),
	}
	reg.MustRegister(m.Transactions, m.Latency)
	return m
}

// Observe records one transaction. It matches Master.OnTransaction.
func (m *BusMetrics) Observe(cmd uint8, d time.Duration, err error) {
	name := protocol.CommandName(cmd)
	m.Transactions.WithLabelValues(name, result(err)).Inc()
	m.Latency.WithLabelValues(name).Observe(d.Seconds())
}

func result(err error) string {
	var remote *bus.RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, bus.ErrTimeout):
		return "timeout"
	case errors.As(err, &remote):
		return "remote_error"
	default:
		return "error"
	}
}

// Snapshot is a copy of the counters of one firmware instance.
type Snapshot struct {
	Address     uint8
	Uptime      uint64
	Firmware    core.FirmwareStats
	Decoder     protocol.DecoderStats
	Interpreter core.InterpreterStats
	Stale       uint16
}

// TakeSnapshot copies the counters of fw. It must run on the goroutine
// that polls fw.
func TakeSnapshot(fw *core.Firmware) Snapshot {
	return Snapshot{
		Address:     fw.Address(),
		Uptime:      fw.Uptime(),
		Firmware:    fw.Stats(),
		Decoder:     fw.DecoderStats(),
		Interpreter: fw.InterpreterStats(),
		Stale:       fw.Inputs().StaleMask(),
	}
}

// FirmwareCollector exports the latest snapshot of a simulated board.
type FirmwareCollector struct {
	mu   sync.Mutex
	snap Snapshot

	events  *prometheus.Desc
	uptime  *prometheus.Desc
	stale   *prometheus.Desc
	address *prometheus.Desc
}

// NewFirmwareCollector creates a collector; register it with a registry and
// feed it with Update.
func NewFirmwareCollector() *FirmwareCollector {
	return &FirmwareCollector{
		events: prometheus.NewDesc("iox16_board_events_total",
			"Board counters by event.", []string{"event"}, nil),
		uptime: prometheus.NewDesc("iox16_board_uptime_seconds",
			"Board uptime.", nil, nil),
		stale: prometheus.NewDesc("iox16_board_stale_inputs",
			"Number of inputs whose last sample failed.", nil, nil),
		address: prometheus.NewDesc("iox16_board_address",
			"Active bus address.", nil, nil),
	}
}

// Update stores a new snapshot.
func (c *FirmwareCollector) Update(s Snapshot) {
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}

func (c *FirmwareCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.uptime
	ch <- c.stale
	ch <- c.address
}

func (c *FirmwareCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	s := c.snap
	c.mu.Unlock()

	counters := []struct {
		name  string
		value uint32
	}{
		{"poll", s.Firmware.Polls},
		{"byte_read", s.Firmware.BytesRead},
		{"echo_byte", s.Firmware.EchoBytes},
		{"held_drop", s.Firmware.HeldDropped},
		{"response", s.Firmware.Responses},
		{"line_error", s.Firmware.LineErrors},
		{"sample_error", s.Firmware.SampleErrors},
		{"frame", s.Decoder.Frames},
		{"crc_error", s.Decoder.CRCErrors},
		{"oversize", s.Decoder.Oversize},
		{"frame_timeout", s.Decoder.Timeouts},
		{"handled", s.Interpreter.Handled},
		{"broadcast", s.Interpreter.Broadcasts},
		{"foreign", s.Interpreter.Foreign},
		{"error_response", s.Interpreter.Errors},
	}
	for _, e := range counters {
		ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(e.value), e.name)
	}
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(s.Uptime)/1e6)
	ch <- prometheus.MustNewConstMetric(c.stale, prometheus.GaugeValue, float64(bits.OnesCount16(s.Stale)))
	ch <- prometheus.MustNewConstMetric(c.address, prometheus.GaugeValue, float64(s.Address))
}
