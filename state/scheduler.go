package state

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Dispatch Dispatches the function to run on the main thread without waiting for it to complete
func (e *Env) Dispatch(fun func(*State) error) {
	defer func() {
		if r := recover(); r != nil {
			e.Cancel(fmt.Errorf("panic: %v", r))
		}
	}()
	e.DispatchChannel <- fun
}

// DispatchWait Dispatches the function to run on the main thread and wait for it to complete
func (e *Env) DispatchWait(fun func(*State) (any, error)) (any, error) {
	ret := make(chan Pair[any, error], 1)
	e.Dispatch(func(s *State) error {
		res, err := fun(s)
		ret <- Pair[any, error]{res, err}
		return err
	})
	select {
	case res := <-ret:
		return res.V1, res.V2
	case <-e.Context.Done():
		return nil, e.Context.Err()
	}
}

// Task is a scheduled function that can be cancelled until it runs.
type Task struct {
	timer   *time.Timer
	stopped atomic.Bool
}

// Stop prevents the task from running. It reports whether the task was
// still pending.
func (t *Task) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	t.timer.Stop()
	return true
}

// ScheduleTask dispatches fun onto the main thread after delay. A task
// stopped after it was queued but before it ran is skipped.
func (e *Env) ScheduleTask(fun func(*State) error, delay time.Duration) *Task {
	t := &Task{}
	t.timer = time.AfterFunc(delay, func() {
		e.Dispatch(func(s *State) error {
			if t.stopped.Swap(true) {
				return nil
			}
			return fun(s)
		})
	})
	return t
}

func (e *Env) repeatedTask(fun func(*State) error, delay time.Duration) {
	tick := time.NewTicker(delay)
	defer tick.Stop()
	for e.Context.Err() == nil {
		e.Dispatch(fun)
		select {
		case <-tick.C:
		case <-e.Context.Done():
		}
	}
}

func (e *Env) RepeatTask(fun func(*State) error, delay time.Duration) {
	go e.repeatedTask(fun, delay)
}
