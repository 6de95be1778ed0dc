package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tradeloop/enginecore/internal/ports"
)

// ScheduledEvent is one entry in event-calendar.json: a named window
// (macro release, exchange maintenance, token unlock) a symbol is
// sensitive to.
type ScheduledEvent struct {
	Symbol string
	Name   string
	Start  time.Time
	End    time.Time
	// PreWindow/PostWindow extend Start/End into the "pre"/"post" phases
	// the event-window filter treats as advisory-scale rather than block
	// (spec §4.4 stage 6).
	PreWindow  time.Duration
	PostWindow time.Duration
}

// FileEventCalendar implements ports.EventCalendar by loading
// event-calendar.json — the one named cache in spec §9 with no TTL because
// it describes scheduled, not streamed, data.
type FileEventCalendar struct {
	Path string

	mu sync.Mutex
}

// NewFileEventCalendar builds a FileEventCalendar rooted at dir.
func NewFileEventCalendar(dir string) *FileEventCalendar {
	return &FileEventCalendar{Path: filepath.Join(dir, "event-calendar.json")}
}

// Phase reports the phase of the nearest event window covering symbol at
// now, or EventNone if none applies or the calendar file is absent.
func (c *FileEventCalendar) Phase(ctx context.Context, symbol string, now time.Time) ports.EventPhase {
	c.mu.Lock()
	defer c.mu.Unlock()

	var events []ScheduledEvent
	err := readJSON(c.Path, &events)
	if errors.Is(err, os.ErrNotExist) || err != nil {
		return ports.EventNone
	}

	for _, ev := range events {
		if ev.Symbol != symbol {
			continue
		}
		switch {
		case !now.Before(ev.Start) && now.Before(ev.End):
			return ports.EventDuring
		case now.Before(ev.Start) && !now.Before(ev.Start.Add(-ev.PreWindow)):
			return ports.EventPre
		case !now.Before(ev.End) && now.Before(ev.End.Add(ev.PostWindow)):
			return ports.EventPost
		}
	}
	return ports.EventNone
}

// Write persists the full event list, replacing any prior calendar.
func (c *FileEventCalendar) Write(events []ScheduledEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeAtomic(c.Path, events)
}
