package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"seqsentry/internal/config"
	"seqsentry/internal/health"
	"seqsentry/internal/logging"
	"seqsentry/internal/metrics"
	"seqsentry/internal/runner"
	"seqsentry/internal/store"
	"seqsentry/internal/watcher"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var mf modelFlags
	var of outputFlags
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Rescore a session file whenever it changes",
		Long: "Score the file once it is stable, then again every time its content changes and " +
			"settles for the configured debounce interval. Configuration file changes are " +
			"picked up without a restart.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, g, &mf, &of)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Addr = metricsAddr
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			log, err := newLogger(cmd, cfg.Logging)
			if err != nil {
				return err
			}
			defer log.Close()
			log = log.WithComponent("watch")

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			s := &watchSession{
				cmd:     cmd,
				log:     log,
				store:   st,
				metrics: metrics.NewScoring(metrics.NewRegistry("seqsentry", "")),
				health:  health.NewChecker(),
				output:  &of,
			}
			s.registerChecks(args[0])
			if err := s.configure(cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			if cfg.Metrics.Enabled {
				stop, err := serveMetrics(ctx, cfg.Metrics, s.metrics.Registry(), s.health, log)
				if err != nil {
					return err
				}
				defer stop()
			}

			if _, err := os.Stat(g.path()); err == nil {
				loader := config.NewLoader(g.path())
				if _, err := loader.Load(); err != nil {
					return err
				}
				loader.OnChange(func(_, next *config.Config) {
					g.apply(next)
					mf.apply(cmd, next)
					if of.noStore {
						next.Storage.Enabled = false
					}
					if err := s.configure(next); err != nil {
						log.Warn("configuration change rejected", "error", err)
						return
					}
					log.Info("configuration reloaded", "path", g.path())
				})
				if err := loader.Watch(); err != nil {
					return err
				}
				defer loader.Close()
			}

			w, err := watcher.New(args, time.Duration(cfg.Watch.DebounceMs)*time.Millisecond)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			if err := w.Start(); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer w.Stop()

			log.Info("watching", "path", args[0], "debounce_ms", cfg.Watch.DebounceMs)
			return s.loop(ctx, w)
		},
	}

	mf.register(cmd)
	of.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve metrics on this address (e.g. 127.0.0.1:9464)")
	return cmd
}

// watchSession rescores on watcher events with the current runner.
type watchSession struct {
	cmd     *cobra.Command
	log     *logging.Logger
	store   *store.Store
	metrics *metrics.Scoring
	health  *health.Checker
	runs    health.RunTracker
	output  *outputFlags

	mu     sync.Mutex
	runner *runner.Runner
}

// configure replaces the runner with one built from cfg.
func (s *watchSession) configure(cfg *config.Config) error {
	opts := []runner.Option{
		runner.WithLogger(s.log),
		runner.WithMetrics(s.metrics),
	}
	if cfg.Storage.Enabled && s.store != nil {
		opts = append(opts, runner.WithStore(s.store))
	}
	r, err := runner.New(cfg, opts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
	return nil
}

// registerChecks registers the components reported on /healthz.
func (s *watchSession) registerChecks(path string) {
	if s.store != nil {
		s.health.RegisterFunc("store", true, health.StoreCheck(s.store.DB().PingContext))
	}
	s.health.RegisterFunc("input", true, health.InputCheck(path))
	s.health.RegisterFunc("last_run", false, s.runs.Check)
}

func (s *watchSession) current() *runner.Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner
}

func (s *watchSession) loop(ctx context.Context, w *watcher.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			s.log.Debug("input settled", "path", ev.Path, "size", ev.Size, "hash", fmt.Sprintf("%x", ev.Hash[:8]))

			res, err := s.current().Run(ctx, ev.Path)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				// Keep watching; the next save may fix the file.
				s.log.Error("scoring failed", "path", ev.Path, "error", err)
				s.runs.Failure(err, time.Now())
				continue
			}
			s.runs.Success(res.RunID, res.CreatedAt)
			s.health.SetReady(true)
			if err := s.output.write(s.cmd, res); err != nil {
				return err
			}

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			s.log.Warn("watcher error", "error", err)
		}
	}
}

// serveMetrics starts the metrics and health endpoints and returns a
// function that shuts them down.
func serveMetrics(ctx context.Context, mc config.MetricsConfig, reg *metrics.Registry, checker *health.Checker, log *logging.Logger) (func(), error) {
	ln, err := net.Listen("tcp", mc.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", mc.Addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(mc.Path, reg.HTTPHandler())
	if checker != nil {
		checker.Mount(mux)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", ln.Addr().String(), "path", mc.Path)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}, nil
}
