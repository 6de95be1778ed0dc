package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/enginecore/internal/ports"
)

type fakeHeartbeat struct {
	lastRun map[string]time.Time
}

func (f *fakeHeartbeat) Record(ctx context.Context, task string, at time.Time, durationMs int64) error {
	f.lastRun[task] = at
	return nil
}

func (f *fakeHeartbeat) Read(ctx context.Context, task string) (time.Time, int64, error) {
	return f.lastRun[task], 0, nil
}

type fakeNotifier struct {
	alerts []ports.Alert
}

func (f *fakeNotifier) Send(ctx context.Context, a ports.Alert) {
	f.alerts = append(f.alerts, a)
}

func TestCheck_FreshHeartbeatIsNotStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	hb := &fakeHeartbeat{lastRun: map[string]time.Time{"scenario-main": now.Add(-30 * time.Second)}}
	notifier := &fakeNotifier{}
	w := New(hb, notifier, []Task{{Name: "scenario-main", MaxAge: time.Minute}})

	results := w.Check(context.Background(), now)

	require.Len(t, results, 1)
	assert.False(t, results[0].Stale)
	assert.Empty(t, notifier.alerts)
}

func TestCheck_StaleHeartbeatAlertsOnce(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	hb := &fakeHeartbeat{lastRun: map[string]time.Time{"scenario-main": now.Add(-10 * time.Minute)}}
	notifier := &fakeNotifier{}
	w := New(hb, notifier, []Task{{Name: "scenario-main", MaxAge: time.Minute}})

	results := w.Check(context.Background(), now)

	require.Len(t, results, 1)
	assert.True(t, results[0].Stale)
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "scenario-main", notifier.alerts[0].Scope)
}

func TestCheck_NeverRanIsStale(t *testing.T) {
	hb := &fakeHeartbeat{lastRun: map[string]time.Time{}}
	notifier := &fakeNotifier{}
	w := New(hb, notifier, []Task{{Name: "scenario-main", MaxAge: time.Minute}})

	results := w.Check(context.Background(), time.Now())

	require.Len(t, results, 1)
	assert.True(t, results[0].Stale)
	assert.True(t, results[0].LastRun.IsZero())
}

func TestCheck_MultipleTasksIndependentlyEvaluated(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	hb := &fakeHeartbeat{lastRun: map[string]time.Time{
		"scenario-a": now.Add(-10 * time.Second),
		"scenario-b": now.Add(-10 * time.Minute),
	}}
	notifier := &fakeNotifier{}
	w := New(hb, notifier, []Task{
		{Name: "scenario-a", MaxAge: time.Minute},
		{Name: "scenario-b", MaxAge: time.Minute},
	})

	results := w.Check(context.Background(), now)

	require.Len(t, results, 2)
	assert.False(t, results[0].Stale)
	assert.True(t, results[1].Stale)
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "scenario-b", notifier.alerts[0].Scope)
}
