// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package sensor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes a Sensor's Stats as Prometheus gauges, registered once
// per process; Observe copies one sensor's Stats.Snapshot into them. The
// Runtime in cmd/dsm registers these gauges but never calls Observe. This
// supplements (does not replace) the in-process
// Stats struct the CLI status pages would use, per SPEC_FULL's ambient
// metrics section.
type Metrics struct {
	SampleRate  *prometheus.GaugeVec
	MinLength   *prometheus.GaugeVec
	MaxLength   *prometheus.GaugeVec
	ReadErrors  *prometheus.GaugeVec
	WriteErrors *prometheus.GaugeVec
}

// NewMetrics registers the sensor gauge/counter vectors, labeled by
// sensor name, on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SampleRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nidas",
			Subsystem: "sensor",
			Name:      "sample_rate_hz",
			Help:      "Windowed sample rate for a sensor.",
		}, []string{"sensor"}),
		MinLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nidas",
			Subsystem: "sensor",
			Name:      "sample_min_length_bytes",
			Help:      "Windowed minimum sample length for a sensor.",
		}, []string{"sensor"}),
		MaxLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nidas",
			Subsystem: "sensor",
			Name:      "sample_max_length_bytes",
			Help:      "Windowed maximum sample length for a sensor.",
		}, []string{"sensor"}),
		ReadErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nidas",
			Subsystem: "sensor",
			Name:      "read_errors_total",
			Help:      "Cumulative read errors for a sensor.",
		}, []string{"sensor"}),
		WriteErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nidas",
			Subsystem: "sensor",
			Name:      "write_errors_total",
			Help:      "Cumulative write errors for a sensor.",
		}, []string{"sensor"}),
	}
	reg.MustRegister(m.SampleRate, m.MinLength, m.MaxLength, m.ReadErrors, m.WriteErrors)
	return m
}

// Observe updates m's vectors for one sensor from its current Stats
// snapshot.
func (m *Metrics) Observe(name string, s *Sensor) {
	snap := s.Stats().Snapshot()
	m.SampleRate.WithLabelValues(name).Set(snap.SampleRateHz)
	m.MinLength.WithLabelValues(name).Set(float64(snap.MinLength))
	m.MaxLength.WithLabelValues(name).Set(float64(snap.MaxLength))
	m.ReadErrors.WithLabelValues(name).Set(float64(snap.CumReadErr))
	m.WriteErrors.WithLabelValues(name).Set(float64(snap.CumWriteErr))
}
