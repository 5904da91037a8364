package core

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/ospf6rde/perf"
	"github.com/encodeous/ospf6rde/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

var errShutdown = errors.New("received shutdown signal")

func setupDebugging() {
	if state.DBG_debug {
		go func() {
			log.Println(http.ListenAndServe("127.0.0.1:6060", nil))
		}()
	}
}

// Bootstrap reads the configuration and runs the engine until it stops.
func Bootstrap(configPath, logPath string, verbose bool) error {
	setupDebugging()
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	cfg, err := state.ReadConfig(configPath)
	if err != nil {
		return err
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	if err := state.ConfigValidator(cfg); err != nil {
		return err
	}
	return Start(*cfg, level, nil)
}

func newLogger(cfg *state.Config, logLevel slog.Level) *slog.Logger {
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: cfg.RouterId,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}),
	}
	if cfg.LogPath != "" {
		handlers = append(handlers, slog.NewTextHandler(&lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    10,
			MaxBackups: 3,
			Compress:   true,
		}, &slog.HandlerOptions{Level: logLevel}))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

func Start(cfg state.Config, logLevel slog.Level, initState **state.State) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	dispatch := make(chan func(env *state.State) error, state.DispatchQueueSize)

	s := state.State{
		Modules: make(map[string]state.RdeModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			Config:          cfg,
			Log:             newLogger(&cfg, logLevel),
			StartTime:       time.Now(),
		},
	}
	if initState != nil {
		*initState = &s
	}

	s.Log.Info("init modules")
	if err := initModules(&s); err != nil {
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			s.Cancel(errShutdown)
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()

	return MainLoop(&s, dispatch)
}

func initModules(s *state.State) error {
	modules := []state.RdeModule{
		&Rde{},
	}
	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

// MainLoop runs dispatched functions one at a time until the context is
// cancelled. The cause is returned unless it was a requested shutdown.
func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.SlowDispatch {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	cause := context.Cause(s.Context)
	if cause == nil {
		cause = context.Canceled
	}
	s.Log.Info("stopped main loop", "reason", cause.Error())
	Stop(s)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, errShutdown) {
		return nil
	}
	return cause
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return
	}
	s.Cancel(context.Canceled)
	if s.DispatchChannel != nil {
		close(s.DispatchChannel)
	}
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
