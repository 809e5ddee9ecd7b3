package commands

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// terminalDrawers prints drawers instead of rendering them
type terminalDrawers struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	open  checks.DrawerKind
}

func newTerminalDrawers(f *os.File) *terminalDrawers {
	return &terminalDrawers{
		out:   f,
		color: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()),
	}
}

func (t *terminalDrawers) paint(color, s string) string {
	if !t.color {
		return s
	}
	return color + s + colorReset
}

func (t *terminalDrawers) Open(d checks.Drawer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = d.Kind

	switch d.Kind {
	case checks.DrawerLockedDevice:
		fmt.Fprintf(t.out, "🔒 %s\n", t.paint(colorYellow, "Unlock your "+d.Props.ProductName+" to continue"))
	case checks.DrawerAllowSecureChannel:
		fmt.Fprintf(t.out, "🔐 %s\n", t.paint(colorYellow, "Allow the secure connection on your "+d.Props.ProductName))
	case checks.DrawerNotGenuine:
		fmt.Fprintf(t.out, "❌ %s\n", t.paint(colorRed, "This "+d.Props.ProductName+" is not genuine"))
	case checks.DrawerGenuineCheckError:
		fmt.Fprintf(t.out, "⚠️  %s: %v\n", t.paint(colorRed, "Genuine check failed"), d.Props.Err)
	case checks.DrawerFirmwareUpdate:
		if u := d.Props.Update; u != nil {
			fmt.Fprintf(t.out, "⬆️  %s %s (mode=%s step=%s reset=%t)\n",
				t.paint(colorCyan, "Updating firmware to"), u.Firmware.FinalName(), u.Mode, u.StepID, u.WithResetStep)
		}
	}
}

func (t *terminalDrawers) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = checks.DrawerNone
}

func (t *terminalDrawers) Current() checks.DrawerKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}
