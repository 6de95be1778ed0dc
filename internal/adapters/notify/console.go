// Package notify implements ports.Notifier for stdout, mirroring the
// teacher's internal/adapters/notify/console.go — a plain io.Writer
// wrapper the rest of the engine never knows is a terminal rather than a
// webhook/Slack transport.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tradeloop/enginecore/internal/ports"
)

// Console implements ports.Notifier by writing one line per alert to an
// io.Writer (stdout in production, a buffer in tests).
type Console struct {
	out io.Writer
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole builds a Console writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter builds a Console writing to w, for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Send writes one formatted line per alert. Per the Notifier contract it
// never returns an error — a broken stdout pipe must not abort a tick.
func (c *Console) Send(ctx context.Context, a ports.Alert) {
	fmt.Fprintf(c.out, "[%s] %-16s %-16s %s\n", a.At.Format(time.RFC3339), a.Kind, a.Scope, a.Message)
}
