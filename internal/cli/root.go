package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
)

// Execute runs the flowboard CLI with ctx and returns an error if any
// command fails.
//
// Logging:
//   - Default: the level from the config file (info unless set)
//   - With --verbose (-v): debug level
//
// The logger is attached to the command context and accessible to all
// commands via loggerFromContext.
//
// Example:
//
//	func main() {
//	    if err := cli.Execute(ctx); err != nil {
//	        cli.PrintError(os.Stderr, err)
//	        os.Exit(1)
//	    }
//	}
func Execute(ctx context.Context) error {
	c := New(os.Stderr, LogInfo)
	return c.RootCommand().ExecuteContext(ctx)
}

// PrintError writes err to w, styled, with its error code when it has one.
func PrintError(w io.Writer, err error) {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render("cancelled"))
		return
	}
	msg := fberrors.UserMessage(err)
	if code := fberrors.GetCode(err); code != "" {
		msg += " " + StyleDim.Render("("+string(code)+")")
	}
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+msg)
}
