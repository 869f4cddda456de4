// internal/cli/root_test.go
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/procimg-watch/internal/config"
	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/transport"
	"github.com/tamzrod/procimg-watch/internal/transport/transporttest"
)

// ---- fixture ----

const testConfig = `
connections:
  - name: bench
    address: 127.0.0.1
`

func newFake() *transporttest.Fake {
	return &transporttest.Fake{
		DeviceList: []transport.Device{{ID: 32, Name: "DIO"}},
		Inputs: map[int][]image.IoDescriptor{32: {
			{Name: "I_1", ByteLength: 1, ByteOffset: 0, BitOffset: 3},
			{Name: "I_2", ByteLength: 2, ByteOffset: 1, BitOffset: image.WholeByte, ByteOrder: image.BigEndian},
		}},
		Outputs: map[int][]image.IoDescriptor{32: {
			{Name: "O_1", ByteLength: 1, ByteOffset: 3, BitOffset: 0},
			{Name: "AO", ByteLength: 1, ByteOffset: 4, BitOffset: image.WholeByte},
		}},
		Image: []byte{0x08, 0x00, 0x2A, 0x00, 0x00},
		Level: transport.WriteAccessLevel,
	}
}

type result struct {
	out    string
	stderr string
	err    error
}

func execute(t *testing.T, ctx context.Context, fake *transporttest.Fake, stdin string, args ...string) result {
	t.Helper()
	return executeWith(t, ctx, &RootOptions{
		Dial: func(conn config.ConnectionConfig) (transport.Client, error) {
			return fake, nil
		},
	}, testConfig, stdin, args...)
}

func executeWith(t *testing.T, ctx context.Context, opts *RootOptions, configText, stdin string, args ...string) result {
	t.Helper()

	path := filepath.Join(t.TempDir(), "procwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configText), 0o600))

	cmd := newRootCommand(opts)

	var out, stderr bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&lockedWriter{w: &stderr})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", path}, args...))

	err := cmd.ExecuteContext(ctx)
	return result{out: out.String(), stderr: stderr.String(), err: err}
}

// ---- command tree ----

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "procwatch", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"devices", "read", "write", "watch"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
	assert.Equal(t, "procwatch.yaml", cfg.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	yes := cmd.PersistentFlags().Lookup("yes")
	require.NotNil(t, yes)
	assert.Equal(t, "false", yes.DefValue)
}

func TestWatchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	watch, _, err := cmd.Find([]string{"watch"})
	require.NoError(t, err)

	require.NotNil(t, watch.Flags().Lookup("write"))
	interval := watch.Flags().Lookup("interval")
	require.NotNil(t, interval)
	assert.Equal(t, "0s", interval.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	r := execute(t, context.Background(), newFake(), "", "read", "bench", "--format", "xml")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}

func TestMissingConfig(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "read", "bench"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// ---- devices / read ----

func TestDevices_ListsLayoutAndRange(t *testing.T) {
	r := execute(t, context.Background(), newFake(), "", "devices", "bench")
	require.NoError(t, r.err)

	assert.Contains(t, r.out, "DIO")
	assert.Contains(t, r.out, "0..255")
	assert.Contains(t, r.out, "0..65535")
	assert.Contains(t, r.out, "0..1\n")
}

func TestRead_PrintsDecodedValues(t *testing.T) {
	r := execute(t, context.Background(), newFake(), "", "read", "bench")
	require.NoError(t, r.err)

	assert.Contains(t, r.out, "I_2")
	assert.Contains(t, r.out, "42")
	assert.Contains(t, r.out, "AO")
}

func TestRead_InputsOnlyJSON(t *testing.T) {
	r := execute(t, context.Background(), newFake(), "", "read", "bench", "--inputs", "--format", "json")
	require.NoError(t, r.err)

	var rows []valueRow
	require.NoError(t, json.Unmarshal([]byte(r.out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "true", rows[0].Value)
	assert.Equal(t, "42", rows[1].Value)
	for _, row := range rows {
		assert.Equal(t, "input", row.Direction)
	}
}

func TestRead_UnknownConnection(t *testing.T) {
	r := execute(t, context.Background(), newFake(), "", "read", "nope")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}

func TestRead_UnreachableDevice(t *testing.T) {
	fake := newFake()
	fake.SetFetchErr(errors.New("connection refused"))

	r := execute(t, context.Background(), fake, "", "read", "bench")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
	assert.True(t, fake.Closed)
}

// ---- write ----

func TestWrite_ConfirmedSetsOutput(t *testing.T) {
	fake := newFake()
	r := execute(t, context.Background(), fake, "y\n", "write", "bench", "DIO", "AO", "200")
	require.NoError(t, r.err)

	assert.Equal(t, byte(200), fake.CurrentImage()[4])
	assert.Contains(t, r.out, "200")
	assert.Contains(t, r.stderr, "IMMEDIATELY")
}

func TestWrite_ByPositionWithYes(t *testing.T) {
	fake := newFake()
	r := execute(t, context.Background(), fake, "", "--yes", "write", "bench", "32", "O_1", "on")
	require.NoError(t, r.err)

	assert.Equal(t, byte(0x01), fake.CurrentImage()[3])
	assert.NotContains(t, r.stderr, "IMMEDIATELY")
}

func TestWrite_Declined(t *testing.T) {
	fake := newFake()
	r := execute(t, context.Background(), fake, "n\n", "write", "bench", "DIO", "AO", "7")
	require.Error(t, r.err)

	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
	assert.Zero(t, fake.CurrentImage()[4])
	assert.Zero(t, fake.BatchCount())
}

func TestWrite_OutOfRange(t *testing.T) {
	fake := newFake()
	r := execute(t, context.Background(), fake, "", "--yes", "write", "bench", "DIO", "AO", "256")
	require.Error(t, r.err)

	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
	assert.Contains(t, r.err.Error(), "0..255")
	assert.Zero(t, fake.BatchCount())
}

func TestWrite_RejectsInputsAndUnknowns(t *testing.T) {
	cases := [][]string{
		{"DIO", "I_1", "1"},
		{"DIO", "missing", "1"},
		{"Other", "AO", "1"},
		{"7", "AO", "1"},
		{"DIO", "AO", "twelve"},
	}
	for _, c := range cases {
		r := execute(t, context.Background(), newFake(), "", append([]string{"--yes", "write", "bench"}, c...)...)
		require.Error(t, r.err, c)
		assert.Equal(t, ExitCommandError, GetExitCode(r.err), c)
	}
}

func TestWrite_NotPermitted(t *testing.T) {
	fake := newFake()
	fake.Level = 1
	r := execute(t, context.Background(), fake, "", "--yes", "write", "bench", "DIO", "AO", "1")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
}

// ---- watch ----

func TestWatch_PrintsValuesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	fake := newFake()
	r := execute(t, ctx, fake, "", "watch", "--interval", "5ms", "--status-every", "20ms")
	require.NoError(t, r.err)

	assert.Contains(t, r.out, "bench DIO/I_2 = 42")
	assert.Contains(t, r.out, "bench DIO/AO = 0")
	assert.True(t, fake.Closed)
}

func TestWatch_FailsWhenDeviceUnreachable(t *testing.T) {
	fake := newFake()
	fake.SetFetchErr(errors.New("no route to host"))

	r := execute(t, context.Background(), fake, "", "watch", "bench")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
}

func TestWatch_InvalidStatusEvery(t *testing.T) {
	r := execute(t, context.Background(), newFake(), "", "watch", "--status-every", "0s")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}
