// Package watchdog implements the liveness checker spec §4.1/§6 names as a
// scheduler separate from the per-scenario ticks themselves: it reads the
// heartbeat each scenario task records every tick and alerts when one has
// gone quiet for longer than its expected interval, the same "did the last
// cycle actually run" check the teacher's paper-trading loop gets for free
// from its own ticker but a multi-scenario engine needs watching from
// outside each scenario's own goroutine.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/tradeloop/enginecore/internal/ports"
)

// Task is one heartbeat the watchdog polls.
type Task struct {
	Name     string        // matches the HeartbeatStore key a Scenario records under
	MaxAge   time.Duration // how long a missed heartbeat is tolerated before alerting
}

// Watchdog periodically reads a set of heartbeats and raises an alert
// through its notifier for any task whose last run is older than its
// MaxAge, or that has never run at all. It applies no cooldown itself; alerts
// are rate-limited only when the notifier is a ports.CooldownGate.
type Watchdog struct {
	heartbeat ports.HeartbeatStore
	notifier  ports.Notifier
	tasks     []Task
}

// New builds a Watchdog polling heartbeat for every task in tasks, alerting
// through notifier (which callers should wrap in a ports.CooldownGate so a
// persistently-stuck task doesn't storm the transport every poll).
func New(heartbeat ports.HeartbeatStore, notifier ports.Notifier, tasks []Task) *Watchdog {
	return &Watchdog{heartbeat: heartbeat, notifier: notifier, tasks: tasks}
}

// CheckResult reports one task's observed liveness.
type CheckResult struct {
	Task    string
	Stale   bool
	LastRun time.Time
	Age     time.Duration
}

// Check polls every configured task's heartbeat against now and alerts for
// each stale one. It returns the full set of results regardless of
// staleness, so a report CLI can print liveness for every task, not only
// the failing ones.
func (w *Watchdog) Check(ctx context.Context, now time.Time) []CheckResult {
	results := make([]CheckResult, 0, len(w.tasks))
	for _, task := range w.tasks {
		lastRun, _, err := w.heartbeat.Read(ctx, task.Name)
		if err != nil {
			results = append(results, CheckResult{Task: task.Name, Stale: true})
			if w.notifier != nil {
				msg := fmt.Sprintf("task %q heartbeat could not be read: %v", task.Name, err)
				w.notifier.Send(ctx, ports.Alert{Kind: ports.AlertHalt, Scope: task.Name, Message: msg, At: now})
			}
			continue
		}

		var age time.Duration
		stale := lastRun.IsZero()
		if !stale {
			age = now.Sub(lastRun)
			stale = age > task.MaxAge
		}
		results = append(results, CheckResult{Task: task.Name, Stale: stale, LastRun: lastRun, Age: age})

		if stale && w.notifier != nil {
			msg := fmt.Sprintf("task %q has not reported a heartbeat within %s", task.Name, task.MaxAge)
			if !lastRun.IsZero() {
				msg = fmt.Sprintf("task %q last ran %s ago, exceeding its %s budget", task.Name, age.Round(time.Second), task.MaxAge)
			}
			w.notifier.Send(ctx, ports.Alert{Kind: ports.AlertHalt, Scope: task.Name, Message: msg, At: now})
		}
	}
	return results
}
