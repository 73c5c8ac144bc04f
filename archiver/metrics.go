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

package archiver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes every Output's Status as Prometheus gauges, the
// archiver-side counterpart to sensor.Metrics. The Runtime in cmd/dsm
// calls Observe on its statistics-period timer.
type Metrics struct {
	Connected   *prometheus.GaugeVec
	SamplesPerS *prometheus.GaugeVec
	BytesPerS   *prometheus.GaugeVec
	FileSize    *prometheus.GaugeVec
}

// NewMetrics registers the output gauge vectors, labeled by output name,
// on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nidas",
			Subsystem: "archiver",
			Name:      "output_connected",
			Help:      "1 if an archive output's channel is currently connected.",
		}, []string{"output"}),
		SamplesPerS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nidas",
			Subsystem: "archiver",
			Name:      "output_samples_per_second",
			Help:      "Windowed sample rate written to an archive output.",
		}, []string{"output"}),
		BytesPerS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nidas",
			Subsystem: "archiver",
			Name:      "output_bytes_per_second",
			Help:      "Windowed byte rate written to an archive output.",
		}, []string{"output"}),
		FileSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nidas",
			Subsystem: "archiver",
			Name:      "output_file_size_bytes",
			Help:      "Current file size of a FileSet-backed archive output.",
		}, []string{"output"}),
	}
	reg.MustRegister(m.Connected, m.SamplesPerS, m.BytesPerS, m.FileSize)
	return m
}

// Observe updates m's vectors from a's current output statuses.
func (m *Metrics) Observe(a *Archiver) {
	for name, st := range a.Status() {
		connected := 0.0
		if st.Connected {
			connected = 1.0
		}
		m.Connected.WithLabelValues(name).Set(connected)
		m.SamplesPerS.WithLabelValues(name).Set(st.SamplesPerS)
		m.BytesPerS.WithLabelValues(name).Set(st.BytesPerS)
		m.FileSize.WithLabelValues(name).Set(float64(st.FileSize))
	}
}
