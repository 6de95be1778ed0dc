package ports

import (
	"context"
	"time"
)

// AlertKind enumerates the notification categories the runtime raises.
// Concrete transports (out of this spec's scope) only need to render these;
// the cooldown logic below is the contract every Notifier adapter must honor.
type AlertKind string

const (
	AlertError          AlertKind = "error"
	AlertHalt           AlertKind = "halt"
	AlertDrawdownBreach AlertKind = "drawdown_breach"
	AlertForcedExit     AlertKind = "forced_exit"
	AlertEntry          AlertKind = "entry"
	AlertExit           AlertKind = "exit"
)

// Alert is one notification-worthy event.
type Alert struct {
	Kind    AlertKind
	Scope   string // symbol or scenario id, whichever the alert is keyed by
	Message string
	At      time.Time
}

// Notifier delivers alerts to whatever transport the deployment wires in.
// Send must be safe to call even when the underlying transport is absent or
// failing: a Notifier never returns an error that should abort a tick.
type Notifier interface {
	Send(ctx context.Context, a Alert)
}

// CooldownGate enforces the (kind, scope)-keyed cooldown window spec §7
// requires of every alert path, so a flapping condition cannot storm the
// transport. It wraps a Notifier and is itself a Notifier.
type CooldownGate struct {
	next   Notifier
	window time.Duration
	last   map[string]time.Time
}

// NewCooldownGate wraps next so that repeated alerts of the same
// (kind, scope) within window are dropped.
func NewCooldownGate(next Notifier, window time.Duration) *CooldownGate {
	return &CooldownGate{next: next, window: window, last: make(map[string]time.Time)}
}

// Send drops the alert if one of the same kind and scope already fired
// within the cooldown window, otherwise forwards it and records the time.
func (g *CooldownGate) Send(ctx context.Context, a Alert) {
	key := string(a.Kind) + "|" + a.Scope
	if prev, ok := g.last[key]; ok && a.At.Sub(prev) < g.window {
		return
	}
	g.last[key] = a.At
	g.next.Send(ctx, a)
}
