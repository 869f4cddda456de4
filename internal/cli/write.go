// internal/cli/write.go
package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tamzrod/procimg-watch/internal/codec"
	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/session"
)

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "write <connection> <device> <io> <value>",
		Short: "Set one output on the device",
		Long: `Set one output and write it to the device. The device is named or given
by its position. Bits take 0/1, true/false or on/off; integers may be
written in decimal, hex (0x) or binary (0b).

Outputs are set IMMEDIATELY. Unless --yes is given or confirm_writes is
off, a warning is shown first.

Example:
  procwatch write revpi DIO O_1 1
  procwatch write revpi 32 AnalogOut 0x7fff --yes`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, rootOpts, args)
		},
	}
}

func runWrite(cmd *cobra.Command, opts *RootOptions, args []string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := opts.openSession(ctx, cmd, cfg, args[0], sessionHooks{})
	if err != nil {
		return err
	}
	defer s.Close()

	ref, d, err := resolveOutput(s, args[1], args[2])
	if err != nil {
		return WrapExitError(ExitCommandError, "write", err)
	}
	v, err := image.ParseValue(d, args[3])
	if err != nil {
		return WrapExitError(ExitCommandError, "write", err)
	}

	if err := s.BeginEdit(ref); err != nil {
		return WrapExitError(ExitCommandError, "write", err)
	}
	if err := s.Commit(ctx, ref, v); err != nil {
		if errors.Is(err, codec.ErrInvalidValue) {
			lo, hi, _ := s.Bounds(ref)
			return WrapExitError(ExitCommandError, "write",
				fmt.Errorf("%w (accepted %s..%s)", err, lo, hi))
		}
		return WrapExitError(ExitFailure, "write", err)
	}

	if err := s.WriteOutputs(ctx); err != nil {
		if errors.Is(err, session.ErrWriteDeclined) {
			return WrapExitError(ExitCommandError, "write", err)
		}
		return WrapExitError(ExitFailure, "write", err)
	}
	if err := s.ReadAll(ctx); err != nil {
		return WrapExitError(ExitFailure, "read back", err)
	}

	v, _ = s.Value(ref)
	return printValues(cmd.OutOrStdout(), opts.Format, []valueRow{{
		Device:    s.Registry().DeviceName(ref.Device),
		DeviceID:  ref.Device,
		IO:        ref.Name,
		Direction: d.Direction.String(),
		Value:     v.String(),
	}})
}

// resolveOutput finds an output by device name or position and IO name.
func resolveOutput(s *session.Session, device, io string) (image.Ref, image.IoDescriptor, error) {
	reg := s.Registry()

	id := -1
	for _, dev := range reg.Devices() {
		if dev.Name == device {
			id = dev.ID
			break
		}
	}
	if id < 0 {
		n, err := strconv.Atoi(device)
		if err != nil {
			return image.Ref{}, image.IoDescriptor{}, fmt.Errorf("unknown device %q", device)
		}
		if _, ok := reg.Device(n); !ok {
			return image.Ref{}, image.IoDescriptor{}, fmt.Errorf("unknown device %d", n)
		}
		id = n
	}

	ref := image.Ref{Device: id, Name: io}
	d, ok := reg.Lookup(ref)
	if !ok {
		return image.Ref{}, image.IoDescriptor{}, fmt.Errorf("device %q has no io %q", device, io)
	}
	if d.Direction != image.Output {
		return image.Ref{}, image.IoDescriptor{}, fmt.Errorf("io %q is an input", io)
	}
	return ref, d, nil
}
