// internal/cli/root.go
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tamzrod/procimg-watch/internal/config"
	"github.com/tamzrod/procimg-watch/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string // overrides log.level
	LogFormat  string // overrides log.format
	Format     string // output: text|json
	Yes        bool   // answer the write warning with yes

	// Dial opens a connection. Tests replace it with a fake.
	Dial DialFunc

	// DialStatus opens status endpoints. Tests replace it with a fake.
	DialStatus StatusDialFunc
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the procwatch CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Dial: DialConnection, DialStatus: DialStatusEndpoint})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "procwatch",
		Short: "Watch and set the process image of a PLC",
		Long: `procwatch reads the process image of a PLC, decodes every IO of the
device catalogue and optionally writes changed outputs back.

Connections are declared in the configuration file; XML-RPC connections
read the catalogue from the device, Modbus connections declare it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flag",
					fmt.Errorf("format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "procwatch.yaml", "configuration file (.yaml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Yes, "yes", "y", false, "do not ask before writing outputs")

	cmd.AddCommand(NewDevicesCommand(opts))
	cmd.AddCommand(NewReadCommand(opts))
	cmd.AddCommand(NewWriteCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig reads the configuration and applies the logging flags.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	return cfg, nil
}

// logger builds the logger of one connection, or the root logger for an
// empty name.
func (o *RootOptions) logger(cmd *cobra.Command, cfg *config.Config, connection string) (*slog.Logger, error) {
	log, err := logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Connection: connection,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "logging", err)
	}
	return log, nil
}
