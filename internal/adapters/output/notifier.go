package output

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
)

// Notifier prints picker notices to stderr unless Out is set.
type Notifier struct {
	Out   io.Writer
	Quiet bool
}

// Notify prints message as a warning or an info line.
func (n Notifier) Notify(message string, isError bool) {
	if n.Quiet && !isError {
		return
	}
	out := n.Out
	if out == nil {
		out = os.Stderr
	}
	if isError {
		fmt.Fprintln(out, pterm.Warning.Sprint(message))
		return
	}
	fmt.Fprintln(out, pterm.Info.Sprint(message))
}
