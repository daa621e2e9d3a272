package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/librescoot/librehsm"
	"github.com/librescoot/librehsm/internal/config"
	"github.com/librescoot/librehsm/metrics"
	"github.com/librescoot/librehsm/timer"
)

// app is what every subcommand runs with
type app struct {
	cfg    config.Config
	logger *slog.Logger
	reg    *prometheus.Registry
	out    io.Writer
}

func newApp(cmd *cobra.Command, opts *options) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &app{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})),
		reg:    reg,
		out:    cmd.OutOrStdout(),
	}, nil
}

// machineOptions returns the options for the machine called name
func (a *app) machineOptions(name string, eventName func(librehsm.EventID) string) []librehsm.MachineOption {
	return append(a.cfg.MachineOptions(),
		librehsm.WithLogger(a.logger.With("machine", name)),
		librehsm.WithObserver(metrics.NewObserver(a.reg, name, metrics.WithEventNames(eventName))),
	)
}

// run drives loops until handle returns false, the input ends or ctx is
// done. The metrics server runs alongside when configured.
func (a *app) run(ctx context.Context, in io.Reader, loops []*timer.Loop, handle func(ctx context.Context, cmd string) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	for _, l := range loops {
		g.Go(func() error {
			return l.Run(ctx)
		})
	}

	if a.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return a.serveMetrics(ctx)
		})
	}

	lines := readLines(ctx, in)
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || !handle(ctx, command(line)) {
					return nil
				}
			}
		}
	})

	return g.Wait()
}

func (a *app) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown", "error", err)
		}
	}()

	a.logger.Info("serving metrics", "addr", a.cfg.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// readLines feeds the lines of in to the returned channel, which is closed
// at the end of input
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// command normalises an input line. A line of blanks is the space key.
func command(line string) string {
	cmd := strings.TrimSpace(line)
	if cmd == "" && line != "" {
		return " "
	}
	return cmd
}

// statusLine renders one field per machine on a single terminal line
type statusLine struct {
	mu     sync.Mutex
	out    io.Writer
	fields []string
}

func newStatusLine(out io.Writer, n int) *statusLine {
	return &statusLine{out: out, fields: make([]string, n)}
}

func (s *statusLine) set(i int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fields[i] = text
	fmt.Fprintf(s.out, "\r%-80s", strings.Join(s.fields, "  "))
}

func (s *statusLine) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, "\nquitting")
}
