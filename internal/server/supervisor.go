package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// ErrTaskPanicked is returned by Run when a task that must not restart panicked.
var ErrTaskPanicked = errors.New("supervised task panicked")

const restartBackoff = time.Second

// Task is a long-running unit supervised by Supervisor. It returns when ctx is done.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	// Restart re-runs the task after a panic instead of shutting the process down.
	Restart bool
}

// Supervisor runs tasks until one fails or ctx is cancelled, then cancels the rest.
type Supervisor struct {
	tasks  []Task
	logger *slog.Logger
}

// NewSupervisor returns a Supervisor for tasks.
func NewSupervisor(logger *slog.Logger, tasks ...Task) *Supervisor {
	return &Supervisor{tasks: tasks, logger: logger}
}

// Run blocks until every task has returned. The first task error is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		g.Go(func() error { return s.supervise(ctx, t) })
	}
	return g.Wait()
}

func (s *Supervisor) supervise(ctx context.Context, t Task) error {
	for {
		err := s.runGuarded(ctx, t)
		if !errors.Is(err, ErrTaskPanicked) || !t.Restart {
			return err
		}
		s.logger.WarnContext(ctx, "restarting task", "task", t.Name)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(restartBackoff):
		}
	}
}

func (s *Supervisor) runGuarded(ctx context.Context, t Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.ErrorContext(ctx, "task panicked", "task", t.Name, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %s", ErrTaskPanicked, t.Name)
		}
	}()
	if err := t.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", t.Name, err)
	}
	return nil
}

// HTTPTask serves srv until ctx is done, then shuts it down within drain.
func HTTPTask(name string, srv *http.Server, drain time.Duration, logger *slog.Logger) Task {
	return Task{Name: name, Run: func(ctx context.Context) error {
		errc := make(chan error, 1)
		go func() {
			logger.Info("listening", "listener", name, "addr", srv.Addr)
			errc <- srv.ListenAndServe()
		}()
		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "listener", name, "error", err)
		}
		return nil
	}}
}

// GRPCTask serves s on addr until ctx is done, then stops gracefully.
func GRPCTask(name, addr string, s *grpc.Server, logger *slog.Logger) Task {
	return Task{Name: name, Run: func(ctx context.Context) error {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		errc := make(chan error, 1)
		go func() {
			logger.Info("listening", "listener", name, "addr", addr)
			errc <- s.Serve(lis)
		}()
		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
			s.GracefulStop()
			return nil
		}
	}}
}
