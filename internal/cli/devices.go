// internal/cli/devices.go
package cli

import (
	"github.com/spf13/cobra"
)

// NewDevicesCommand creates the devices command.
func NewDevicesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices <connection>",
		Short: "List the IO catalogue of a connection",
		Long: `List every device and IO known to the connection with its byte layout
and the range of values it accepts.

Example:
  procwatch devices revpi
  procwatch devices bench --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			s, err := rootOpts.openSession(cmd.Context(), cmd, cfg, args[0], sessionHooks{})
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := catalogueRows(s)
			if err != nil {
				return err
			}
			return printCatalogue(cmd.OutOrStdout(), rootOpts.Format, rows)
		},
	}
}
