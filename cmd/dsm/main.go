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

// Command dsm is the data sample multiplexer's process entrypoint: a thin
// Runtime wrapper around the sensor/pipeline/archiver packages that wires
// signal handling, exit codes, and a Prometheus status page. It does not
// parse the XML sensor catalog the original dsm reads; NewRuntime creates
// the PortSelector but registers no sensors with it, and the flags here
// only cover the pipeline parameters that would otherwise come from that
// catalog.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"hz.tools/nidas"
	"hz.tools/nidas/archiver"
	"hz.tools/nidas/ioc"
	"hz.tools/nidas/pipeline"
	"hz.tools/nidas/sensor"
)

// Options is the set of pipeline parameters a cobra flag set can populate.
// In the original these come from the XML sensor catalog; XML parsing is
// out of scope here, so they are plain struct fields instead.
type Options struct {
	LogPath  string
	LogLevel string

	MetricsAddr string

	Outputs        []string
	FileLengthSecs int64

	SortLength          time.Duration
	HeapMax             int
	LateSampleCacheSize int

	StatisticsPeriod time.Duration

	Project  string
	Aircraft string
	Flight   string
}

// cliError carries an explicit process exit code, per §6's "configuration
// or IO error during startup" (1) vs. "unexpected runtime error" (2)
// distinction.
type cliError struct {
	Code int
	Err  error
}

func (e *cliError) Error() string { return e.Err.Error() }
func (e *cliError) Unwrap() error { return e.Err }

func main() {
	opts := &Options{}

	root := &cobra.Command{
		Use:   "dsm",
		Short: "Run the NIDAS sample pipeline (sort, resample, sync-record, archive)",
		Long: "dsm reads raw samples from registered sensors, sorts them by time,\n" +
			"builds per-second sync records, and archives the result to one or\n" +
			"more named outputs, until SIGINT/SIGTERM/SIGUSR1 or an unrecoverable\n" +
			"error. SIGHUP re-reads configuration and restarts the pipeline in\n" +
			"place without exiting the process.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.LogPath, "log", "/var/log/dsm/dsm.log", "log file path")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "minimum log level (trace, debug, info, warn, error, critical)")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", ":9111", "address for the Prometheus /metrics endpoint")
	flags.StringArrayVar(&opts.Outputs, "output", nil, "archive output as name=channel, e.g. raw=file:///data/raw_%Y%m%d_%H%M%S.dat (repeatable)")
	flags.Int64Var(&opts.FileLengthSecs, "file-length", 3600, "file rotation period in seconds for file:// outputs")
	flags.DurationVar(&opts.SortLength, "sort-length", time.Second, "SortedSampleSet's sort window")
	flags.IntVar(&opts.HeapMax, "heap-max", 0, "SortedSampleSet's byte cap (0 disables)")
	flags.IntVar(&opts.LateSampleCacheSize, "late-sample-cache-size", 0, "SortedSampleSet's sample-count cap (0 disables)")
	flags.DurationVar(&opts.StatisticsPeriod, "statistics-period", 300*time.Second, "metrics observation period")
	flags.StringVar(&opts.Project, "project", "", "sync record header project name")
	flags.StringVar(&opts.Aircraft, "aircraft", "", "sync record header aircraft name")
	flags.StringVar(&opts.Flight, "flight", "", "sync record header flight name")

	if err := root.Execute(); err != nil {
		var ce *cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, "dsm:", ce.Err)
			os.Exit(ce.Code)
		}
		fmt.Fprintln(os.Stderr, "dsm:", err)
		os.Exit(2)
	}
}

// run repeatedly builds and drives a Runtime, looping only when a
// SIGHUP-driven restart was requested, per §6's "SIGHUP -> re-read
// configuration and restart the pipeline".
func run(opts *Options) error {
	for {
		rt, err := NewRuntime(opts)
		if err != nil {
			return &cliError{Code: 1, Err: err}
		}

		restart, runErr := rt.Run()
		if closeErr := rt.Close(); closeErr != nil {
			nidas.Warnf("dsm: shutdown: %v", closeErr)
		}
		if runErr != nil {
			return &cliError{Code: 2, Err: runErr}
		}
		if !restart {
			return nil
		}
		nidas.Infof("dsm: SIGHUP received, restarting pipeline")
	}
}

// Runtime owns every piece of global process state for one run of the
// pipeline: the log file, the Prometheus registry and its HTTP server, the
// PortSelector, and the sort -> sync-record -> archive chain. Close
// performs the ordered teardown §9's Design Notes call for.
type Runtime struct {
	opts *Options

	logFile *os.File

	registry   *prometheus.Registry
	metricsSrv *http.Server

	selector        *sensor.PortSelector
	sensorMetrics   *sensor.Metrics
	archiverMetrics *archiver.Metrics

	sorter *pipeline.SortedSampleSet
	sync   *pipeline.SyncRecordBuilder
	arch   *archiver.Archiver
}

// NewRuntime builds the pipeline described by opts but does not start it;
// call Run to drive it. Every error returned here is a startup error (exit
// code 1).
func NewRuntime(opts *Options) (*Runtime, error) {
	logFile, err := os.OpenFile(opts.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("dsm: open log %s: %w", opts.LogPath, err)
	}
	if err := nidas.InitLogging(logFile, opts.LogLevel); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("dsm: init logging: %w", err)
	}

	selector, err := sensor.NewPortSelector()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("dsm: port selector: %w", err)
	}
	selector.StatisticsPeriod = opts.StatisticsPeriod

	registry := prometheus.NewRegistry()
	sensorMetrics := sensor.NewMetrics(registry)
	arch := archiver.NewArchiver()
	archiverMetrics := archiver.NewMetrics(registry)

	for _, spec := range opts.Outputs {
		name, channel, oerr := parseOutput(spec, opts.FileLengthSecs)
		if oerr != nil {
			logFile.Close()
			return nil, fmt.Errorf("dsm: output %q: %w", spec, oerr)
		}
		arch.AddOutput(archiver.NewOutput(name, channel))
	}

	sorter := pipeline.NewSortedSampleSet(opts.SortLength)
	sorter.HeapMax = opts.HeapMax
	sorter.LateSampleCacheSize = opts.LateSampleCacheSize

	syncBuilder := pipeline.NewSyncRecordBuilder(opts.Project, opts.Aircraft, opts.Flight)
	syncBuilder.Finalize()

	// The sorted stream is archived directly (the raw/processed archive)
	// and also fed into the sync-record builder, whose output is archived
	// in turn -- two distinct sample streams landing on the same
	// Archiver, distinguished by sample id, matching §4.10's model of an
	// Archiver as an id-agnostic fan-out of whatever SampleSource feeds it.
	sorter.AddSampleClient(arch)
	sorter.AddSampleClient(syncBuilder)
	syncBuilder.AddSampleClient(arch)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Runtime{
		opts:            opts,
		logFile:         logFile,
		registry:        registry,
		metricsSrv:      &http.Server{Addr: opts.MetricsAddr, Handler: mux},
		selector:        selector,
		sensorMetrics:   sensorMetrics,
		archiverMetrics: archiverMetrics,
		sorter:          sorter,
		sync:            syncBuilder,
		arch:            arch,
	}, nil
}

// Run drives the pipeline until a terminating signal arrives or the
// PortSelector/metrics server fails. It returns true if the caller should
// rebuild and restart the Runtime (a SIGHUP was received), matching §6's
// signal table; SIGUSR1 and SIGINT/SIGTERM all return false, a plain
// shutdown.
func (r *Runtime) Run() (bool, error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigCh)
	signal.Ignore(syscall.SIGPIPE)

	selErrCh := make(chan error, 1)
	go func() { selErrCh <- r.selector.Run() }()

	metricsErrCh := make(chan error, 1)
	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			metricsErrCh <- err
		}
	}()

	ticker := time.NewTicker(r.opts.StatisticsPeriod)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			nidas.Infof("dsm: received %s", sig)
			return sig == syscall.SIGHUP, nil
		case err := <-selErrCh:
			return false, fmt.Errorf("dsm: port selector: %w", err)
		case err := <-metricsErrCh:
			return false, fmt.Errorf("dsm: metrics server: %w", err)
		case <-ticker.C:
			r.observeMetrics()
		}
	}
}

func (r *Runtime) observeMetrics() {
	r.archiverMetrics.Observe(r.arch)
}

// Close performs the ordered teardown §9's Design Notes describe: stop
// accepting new I/O, flush every buffered pipeline stage so nothing
// in-flight is lost, then release the channels, the metrics server, and
// finally the log file.
func (r *Runtime) Close() error {
	r.selector.Stop()

	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	record(r.selector.Close())
	record(r.sorter.Flush())
	record(r.sync.Flush())
	record(r.arch.Close())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	record(r.metricsSrv.Shutdown(shutdownCtx))

	record(r.logFile.Close())
	return first
}

// parseOutput turns one --output flag value ("name=scheme://address" or
// "name=path") into a named archive channel. Supported schemes: file://
// (a FileSet rolling every fileLengthSecs), tcp://, unix://; anything
// without a "://" is a plain file path.
func parseOutput(spec string, fileLengthSecs int64) (string, ioc.Channel, error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" || rest == "" {
		return "", nil, fmt.Errorf("expected name=channel, got %q", spec)
	}

	scheme, address, hasScheme := strings.Cut(rest, "://")
	if !hasScheme {
		return name, ioc.NewFileWriter(rest), nil
	}

	switch scheme {
	case "file":
		return name, ioc.NewFileSet(ioc.RollPolicy{Template: address, FileLengthSecs: fileLengthSecs}), nil
	case "tcp":
		return name, ioc.NewSocket("tcp", address), nil
	case "unix":
		return name, ioc.NewSocket("unix", address), nil
	default:
		return "", nil, fmt.Errorf("unknown output scheme %q", scheme)
	}
}
