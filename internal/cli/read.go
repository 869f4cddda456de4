// internal/cli/read.go
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tamzrod/procimg-watch/internal/image"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	InputsOnly bool
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <connection>",
		Short: "Read and decode the process image once",
		Long: `Fetch the process image once and print the decoded value of every IO.

Example:
  procwatch read revpi
  procwatch read revpi --inputs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.InputsOnly, "inputs", false, "read and print inputs only")

	return cmd
}

func runRead(cmd *cobra.Command, opts *ReadOptions, name string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := opts.openSession(ctx, cmd, cfg, name, sessionHooks{})
	if err != nil {
		return err
	}
	defer s.Close()

	var keep func(image.IoDescriptor) bool
	if opts.InputsOnly {
		if err := s.ReadInputs(ctx); err != nil {
			return WrapExitError(ExitFailure, "read inputs", err)
		}
		keep = func(d image.IoDescriptor) bool { return d.Direction == image.Input }
	}
	return printValues(cmd.OutOrStdout(), opts.Format, valueRows(s, keep))
}
