// Package delay holds back stream activation behind a visible countdown.
package delay

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

const (
	backspace = "\b"
	alert     = "\a"

	// Pause after the last count so its alert is not recorded
	TrailingPause = 500 * time.Millisecond
)

// Gate counts down on Out before returning. The zero value writes nothing.
type Gate struct {
	Out   io.Writer
	Quiet bool

	// Sleep is replaced in tests
	Sleep func(time.Duration)
}

// Wait blocks for seconds whole seconds, printing each count, then pauses
// for TrailingPause. A nil or zero count returns at once.
func (g Gate) Wait(ctx context.Context, seconds *uint) error {
	if seconds == nil || *seconds == 0 {
		return nil
	}

	out := g.Out
	if out == nil {
		out = io.Discard
	}
	sleep := g.Sleep
	if sleep == nil {
		sleep = func(d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		}
	}

	bell := alert
	if g.Quiet {
		bell = ""
	}
	interactive := isTerminal(out)

	if interactive {
		fmt.Fprint(out, "Recording in  ")
	}
	for count := *seconds; count > 0; count-- {
		if err := ctx.Err(); err != nil {
			if interactive {
				fmt.Fprintln(out)
			}
			return err
		}
		if interactive {
			fmt.Fprintf(out, "%s%d%s", backspace, count, bell)
		} else {
			fmt.Fprintf(out, "Recording in %d\n", count)
		}
		sleep(time.Second)
	}
	if interactive {
		fmt.Fprint(out, "\r")
	}

	sleep(TrailingPause)
	return ctx.Err()
}

// Seconds is a convenience for building the optional count
func Seconds(n uint) *uint {
	return &n
}

var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
