package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"evently/internal/config"
	"evently/internal/loader"
	"evently/internal/publish"
	"evently/internal/types"
)

const usage = `usage: evently [-config path] <command> [args]

commands:
  worker                         poll the queue and process tasks
  serve                          run the HTTP API
  enqueue [-kind K] <target>...  create tasks and queue them
  prune [-events 720h] [-tasks 168h]
                                 delete old events and finished tasks
  publish <event-id>...          publish DRAFT events
`

var (
	configPath = flag.String("config", "config.toml", "Path to configuration file")
)

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	switch command {
	case "worker":
		return runWorker(ctx, cfg, logger)
	case "serve":
		return runServe(ctx, cfg, logger)
	case "enqueue":
		return runEnqueue(ctx, cfg, logger, args)
	case "prune":
		return runPrune(ctx, cfg, logger, args)
	case "publish":
		return runPublish(ctx, cfg, logger, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := loader.NewLoader(cfg, logger).Initialize(ctx, loader.RoleWorker)
	if err != nil {
		return err
	}

	// In-flight jobs get the shutdown window to finish before they are cancelled.
	workerCtx, workerCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer workerCancel()

	logger.Info("Starting worker", "name", st.Worker.Name(), "id", st.Worker.ID())
	errChan := make(chan error, 1)
	go func() {
		errChan <- st.Worker.Start(workerCtx)
	}()

	var runErr error
	select {
	case runErr = <-errChan:
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := shutdownContext()
		defer shutdownCancel()
		if err := st.Worker.Stop(shutdownCtx); err != nil {
			logger.Warn("Worker did not drain in time, cancelling jobs", "error", err)
			workerCancel()
			<-errChan
		}
	}

	shutdownCtx, shutdownCancel := shutdownContext()
	defer shutdownCancel()
	if err := st.Close(shutdownCtx); err != nil {
		logger.Warn("Errors while closing components", "error", err)
	}

	logger.Info("Worker stopped")
	return runErr
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := loader.NewLoader(cfg, logger).Initialize(ctx, loader.RoleServer)
	if err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := shutdownContext()
	defer shutdownCancel()
	return st.Close(shutdownCtx)
}

func runEnqueue(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	kind := fs.String("kind", "", "Source kind (detected from the target when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("enqueue: at least one target is required")
	}

	st, err := loader.NewLoader(cfg, logger).Initialize(ctx, loader.RoleProducer)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := shutdownContext()
		defer cancel()
		_ = st.Close(shutdownCtx)
	}()

	failed := 0
	for _, target := range fs.Args() {
		task, err := st.Producer.Enqueue(ctx, target, types.SourceKind(*kind))
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", target, err)
			continue
		}
		fmt.Printf("%d\t%s\t%s\n", task.ID, task.SourceKind, task.TargetReference)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d targets failed to enqueue", failed, fs.NArg())
	}
	return nil
}

func runPrune(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	eventsAge := fs.Duration("events", 30*24*time.Hour, "Delete events that started longer ago than this")
	tasksAge := fs.Duration("tasks", 7*24*time.Hour, "Delete finished tasks older than this")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := loader.NewLoader(cfg, logger).Initialize(ctx, loader.RoleMaintenance)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := shutdownContext()
		defer cancel()
		_ = st.Close(shutdownCtx)
	}()

	events, err := st.Store().Events().DeleteOlderThan(ctx, *eventsAge)
	if err != nil {
		return err
	}
	tasks, err := st.Store().Tasks().DeleteOlderThan(ctx, *tasksAge)
	if err != nil {
		return err
	}

	logger.Info("Prune complete", "events_deleted", events, "tasks_deleted", tasks)
	return nil
}

func runPublish(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("publish: at least one event id is required")
	}
	if cfg.Publish.Endpoint == "" {
		return errors.New("publish: [publish] endpoint is not configured")
	}

	st, err := loader.NewLoader(cfg, logger).Initialize(ctx, loader.RolePublisher)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := shutdownContext()
		defer cancel()
		_ = st.Close(shutdownCtx)
	}()

	publisher := st.Platform().Publisher()
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("publish: invalid event id %q", arg)
		}
		event, err := publish.Promote(ctx, st.Store().Events(), publisher, id)
		if err != nil {
			return err
		}
		fmt.Printf("%d\t%s\t%s\n", event.ID, event.PublishID, event.Title)
	}
	return nil
}
