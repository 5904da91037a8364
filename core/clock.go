package core

import (
	"time"

	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/state"
)

// loopClock runs engine timers on the main loop.
type loopClock struct {
	env *state.Env
}

func (c loopClock) Now() time.Time {
	return time.Now()
}

func (c loopClock) AfterFunc(d time.Duration, fn func()) lsdb.Timer {
	return c.env.ScheduleTask(func(*state.State) error {
		fn()
		return nil
	}, d)
}
