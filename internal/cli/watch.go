// internal/cli/watch.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/procimg-watch/internal/config"
	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/metrics"
	"github.com/tamzrod/procimg-watch/internal/session"
	"github.com/tamzrod/procimg-watch/internal/status"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Write       bool
	Interval    time.Duration // overrides watch.interval_ms
	StatusEvery time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch [connection...]",
		Short: "Poll connections and print changes",
		Long: `Poll the process image of one or more connections and print every value
that changes. Without arguments every configured connection is watched.

With --write, outputs whose value differs from the device are written back
on every poll. A connection that keeps failing stops the watch.

Example:
  procwatch watch
  procwatch watch revpi --write --interval 500ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Write, "write", false, "write changed outputs back to the device")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "poll interval (default from config)")
	cmd.Flags().DurationVar(&opts.StatusEvery, "status-every", time.Second, "how often changes and status are printed")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, names []string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Interval > 0 {
		cfg.Watch.IntervalMs = int(opts.Interval / time.Millisecond)
	}
	if opts.StatusEvery <= 0 {
		return WrapExitError(ExitCommandError, "invalid flag", errors.New("status-every must be > 0"))
	}
	if len(names) == 0 {
		for _, c := range cfg.Connections {
			names = append(names, c.Name)
		}
	}

	log, err := opts.logger(cmd, cfg, "")
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	reg := prometheus.NewRegistry()
	out := &lockedWriter{w: cmd.OutOrStdout()}

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	watcher, err := config.NewWatcher(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "watch config", err)
	}
	watcher.OnChange(func(old, cur *config.Config) {
		added, removed := config.DiffConnections(old, cur)
		if len(added) > 0 || len(removed) > 0 {
			log.Warn("configuration changed, restart to apply",
				"added", added, "removed", removed)
			return
		}
		log.Info("configuration reloaded")
	})
	g.Go(func() error { return watcher.Run(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-watcher.Errors():
				log.Warn("configuration", "err", err)
			}
		}
	})

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		g.Go(func() error {
			return watchConnection(ctx, cmd, opts, cfg, name, reg, out)
		})
	}

	return g.Wait()
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	return mux
}

// watchConnection polls one connection until ctx is done or the breaker
// trips.
func watchConnection(ctx context.Context, cmd *cobra.Command, opts *WatchOptions, cfg *config.Config,
	name string, reg prometheus.Registerer, out io.Writer) error {

	log, err := opts.logger(cmd, cfg, name)
	if err != nil {
		return err
	}

	tripped := make(chan error, 1)
	s, err := opts.openSession(ctx, cmd, cfg, name, sessionHooks{
		Metrics: metrics.New(reg, name),
		OnTrip: func(err error) {
			select {
			case tripped <- err:
			default:
			}
		},
		OnReport: func(err error) { log.Warn("write", "err", err) },
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("close", "err", err)
		}
	}()

	if err := s.SetAutoRefresh(true); err != nil {
		return WrapExitError(ExitFailure, "start "+name, err)
	}
	if opts.Write {
		if err := s.SetWriteIntent(ctx, true); err != nil {
			code := ExitFailure
			if errors.Is(err, session.ErrWriteDeclined) {
				code = ExitCommandError
			}
			return WrapExitError(code, "enable writes on "+name, err)
		}
	}

	conn, _ := cfg.Connection(name)
	pub := opts.openStatusPublisher(conn, log)
	defer pub.Close()
	pub.Publish(s.Status())

	last := make(map[image.Ref]string)
	printChanges(out, name, s, last)

	ticker := time.NewTicker(opts.StatusEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-tripped:
			snap := s.Status()
			pub.Publish(snap)
			fmt.Fprintf(out, "%s: %s\n", name, status.Format(snap, time.Now()))
			return WrapExitError(ExitFailure, "connection "+name+" gave up", err)
		case now := <-ticker.C:
			snap := s.Status()
			printChanges(out, name, s, last)
			logStatus(log, snap, now)
			pub.Publish(snap)
		}
	}
}

// printChanges prints every value that differs from last and records it.
func printChanges(out io.Writer, name string, s *session.Session, last map[image.Ref]string) {
	reg := s.Registry()
	for _, e := range s.Values() {
		v := e.Value.String()
		if prev, ok := last[e.Ref]; ok && prev == v {
			continue
		}
		last[e.Ref] = v
		fmt.Fprintf(out, "%s %s/%s = %s\n", name, reg.DeviceName(e.Ref.Device), e.Ref.Name, v)
	}
}

func logStatus(log *slog.Logger, snap status.Snapshot, now time.Time) {
	if snap.Health == status.HealthOK {
		log.Debug("status", "line", status.Format(snap, now))
		return
	}
	log.Warn("status", "line", status.Format(snap, now))
}
