// internal/cli/confirm.go
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamzrod/procimg-watch/internal/config"
)

// Prompt asks warning on out and reads a yes/no answer from in.
// Anything but "y" or "yes" is a no, including end of input.
func Prompt(in io.Reader, out io.Writer) func(ctx context.Context, warning string) (bool, error) {
	r := bufio.NewReader(in)
	return func(ctx context.Context, warning string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s\nContinue? [y/N] ", warning)

		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// confirmer returns nil when writes need no confirmation.
func (o *RootOptions) confirmer(cmd *cobra.Command, cfg *config.Config) func(context.Context, string) (bool, error) {
	if o.Yes || (cfg.Watch.ConfirmWrites != nil && !*cfg.Watch.ConfirmWrites) {
		return nil
	}
	return Prompt(cmd.InOrStdin(), cmd.ErrOrStderr())
}
