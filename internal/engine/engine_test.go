// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/procimg-watch/internal/codec"
	"github.com/tamzrod/procimg-watch/internal/governor"
	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/status"
	"github.com/tamzrod/procimg-watch/internal/store"
	"github.com/tamzrod/procimg-watch/internal/transport"
	"github.com/tamzrod/procimg-watch/internal/transport/transporttest"
	"github.com/tamzrod/procimg-watch/internal/writer"
)

// ---- fixture ----

// Layout (device 1 "DIO"):
//
//	byte 0     I_1 (bit 3)
//	byte 1..2  I_2 (big-endian u16)
//	byte 3     O_1 (bit 0)
//	byte 4..5  O_2 (little-endian u16)
//	byte 6     O_3 (u8)
func newFake() *transporttest.Fake {
	return &transporttest.Fake{
		DeviceList: []transport.Device{{ID: 1, Name: "DIO"}},
		Inputs: map[int][]image.IoDescriptor{1: {
			{Name: "I_1", ByteLength: 1, ByteOffset: 0, BitOffset: 3},
			{Name: "I_2", ByteLength: 2, ByteOffset: 1, BitOffset: image.WholeByte, ByteOrder: image.BigEndian},
		}},
		Outputs: map[int][]image.IoDescriptor{1: {
			{Name: "O_1", ByteLength: 1, ByteOffset: 3, BitOffset: 0},
			{Name: "O_2", ByteLength: 2, ByteOffset: 4, BitOffset: image.WholeByte},
			{Name: "O_3", ByteLength: 1, ByteOffset: 6, BitOffset: image.WholeByte},
		}},
		Image: []byte{0x08, 0x00, 0x2A, 0x00, 0x00, 0x00, 0x00},
		Level: transport.WriteAccessLevel,
	}
}

type rig struct {
	fake  *transporttest.Fake
	reg   *image.Registry
	store *store.Store
	gov   *governor.Governor
	eng   *Engine
	trips int
}

func newRig(t *testing.T, writeAllowed bool) *rig {
	t.Helper()
	r := &rig{fake: newFake()}

	reg, err := image.NewRegistry(
		[]image.Device{{ID: 1, Name: "DIO"}},
		r.fake.Inputs, r.fake.Outputs,
	)
	require.NoError(t, err)
	r.reg = reg
	r.store = store.New(reg)
	r.gov = governor.New(governor.Config{OnTrip: func(error) { r.trips++ }})

	r.eng, err = New(Config{
		Registry:     reg,
		Store:        r.store,
		Client:       r.fake,
		Governor:     r.gov,
		WriteAllowed: writeAllowed,
	})
	require.NoError(t, err)
	return r
}

func ref(name string) image.Ref { return image.Ref{Device: 1, Name: name} }

func (r *rig) value(t *testing.T, name string) image.Value {
	t.Helper()
	v, ok := r.store.Get(ref(name))
	require.True(t, ok, name)
	return v
}

var ctx = context.Background()

// ---- tests ----

func TestNew_RequiresWiring(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestSync_DecodesLayout(t *testing.T) {
	r := newRig(t, true)

	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))

	assert.True(t, r.value(t, "I_1").Bool())
	assert.Equal(t, int64(42), r.value(t, "I_2").Int().Int64())
	assert.False(t, r.value(t, "O_1").Bool())
	assert.Equal(t, status.HealthOK, r.gov.Snapshot().Health)
}

func TestSync_Idempotent(t *testing.T) {
	r := newRig(t, true)

	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))
	first := r.store.Snapshot()
	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))
	second := r.store.Snapshot()

	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, first[i].Value.Equal(second[i].Value), first[i].Ref.String())
	}
	assert.Zero(t, r.fake.BatchCount())
}

func TestSync_ScopeLimitsUpdatedCells(t *testing.T) {
	r := newRig(t, true)
	r.fake.SetImage([]byte{0x08, 0x00, 0x2A, 0x01, 0x00, 0x00, 0x07})

	require.NoError(t, r.eng.Sync(ctx, InputsOnly, false))
	assert.True(t, r.value(t, "I_1").Bool())
	assert.False(t, r.value(t, "O_1").Bool(), "outputs untouched by inputs-only sync")

	require.NoError(t, r.eng.Sync(ctx, OutputsOnly, false))
	assert.True(t, r.value(t, "O_1").Bool())
	assert.Equal(t, int64(7), r.value(t, "O_3").Int().Int64())
}

func TestSync_NeverClobbersLockedCell(t *testing.T) {
	r := newRig(t, true)
	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))

	require.NoError(t, r.eng.BeginEdit(ref("O_3")))
	r.fake.SetImage([]byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x99})

	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))
	assert.Zero(t, r.value(t, "O_3").Int().Int64(), "locked cell keeps the user view")
	assert.Equal(t, int64(1), r.value(t, "I_2").Int().Int64(), "other cells still refresh")

	// locked cells are not written back either
	require.NoError(t, r.eng.Sync(ctx, AllIOs, true))
	assert.Zero(t, r.fake.BatchCount())
}

func TestSync_WriteBackAggregatesAndReportsEachFailure(t *testing.T) {
	r := newRig(t, true)
	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))

	require.NoError(t, r.eng.Commit(ctx, ref("O_1"), image.Bool(true), false))
	require.NoError(t, r.eng.Commit(ctx, ref("O_2"), image.Int64(300), false))
	require.NoError(t, r.eng.Commit(ctx, ref("O_3"), image.Int64(9), false))
	r.fake.FailItem(ref("O_2"), "value out of range")

	err := r.eng.Sync(ctx, AllIOs, true)

	var pwe *writer.PartialWriteError
	require.ErrorAs(t, err, &pwe)
	require.Len(t, pwe.Failures, 1)
	assert.Equal(t, "O_2", pwe.Failures[0].IO)
	assert.Equal(t, "DIO", pwe.Failures[0].DeviceName)
	assert.Contains(t, err.Error(), "value out of range")

	require.Equal(t, 1, r.fake.BatchCount(), "one aggregated call")
	assert.Len(t, r.fake.Batches[0], 3)

	img := r.fake.CurrentImage()
	assert.Equal(t, byte(0x01), img[3], "O_1 written")
	assert.Equal(t, byte(0x09), img[6], "O_3 written")
	assert.False(t, transport.IsFailure(err), "rejected items are not a transport failure")
}

func TestSync_WriteBackLeavesInputsAlone(t *testing.T) {
	r := newRig(t, true)
	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))
	r.fake.SetImage([]byte{0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00})

	require.NoError(t, r.eng.Sync(ctx, AllIOs, true))
	assert.Zero(t, r.fake.BatchCount())
	assert.Equal(t, int64(5), r.value(t, "I_2").Int().Int64())
	assert.False(t, r.value(t, "I_1").Bool())
}

func TestSync_NoWriteWithoutCapability(t *testing.T) {
	r := newRig(t, false)
	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))
	require.NoError(t, r.eng.Commit(ctx, ref("O_3"), image.Int64(1), false))

	err := r.eng.Sync(ctx, AllIOs, true)
	require.ErrorIs(t, err, ErrWriteNotPermitted)
	assert.Zero(t, r.fake.BatchCount())
}

func TestSync_WriteCallFailureIsNotAFetchFailure(t *testing.T) {
	r := newRig(t, true)
	require.NoError(t, r.gov.SetAutoRefresh(true))
	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))
	require.NoError(t, r.eng.Commit(ctx, ref("O_3"), image.Int64(4), false))
	r.fake.SetWriteErr(errors.New("connection reset"))

	err := r.eng.Sync(ctx, AllIOs, true)
	require.Error(t, err)
	assert.True(t, transport.IsFailure(err))
	var fe *FetchError
	assert.False(t, errors.As(err, &fe))
	assert.Equal(t, status.HealthOK, r.gov.Snapshot().Health, "write calls do not feed the breaker")

	v := r.value(t, "O_3")
	assert.Equal(t, int64(4), v.Int().Int64(), "edit kept for the next attempt")
}

func TestSync_BreakerTripsOnceAfterThreshold(t *testing.T) {
	r := newRig(t, true)
	require.NoError(t, r.gov.SetAutoRefresh(true))
	r.fake.SetFetchErr(errors.New("connection refused"))

	for i := 1; i < governor.DefaultThreshold; i++ {
		err := r.eng.Sync(ctx, AllIOs, false)
		require.Error(t, err)
		require.NotErrorIs(t, err, governor.ErrTooManyFailures, "failure %d absorbed", i)
		assert.True(t, transport.IsFailure(err))
		var fe *FetchError
		assert.ErrorAs(t, err, &fe)
	}
	assert.Zero(t, r.trips)

	err := r.eng.Sync(ctx, AllIOs, false)
	require.ErrorIs(t, err, governor.ErrTooManyFailures)
	assert.Equal(t, 1, r.trips)
	assert.False(t, r.gov.AutoRefresh())

	// tripped: no further remote calls
	fetches := r.fake.FetchCount()
	require.ErrorIs(t, r.eng.Sync(ctx, AllIOs, false), governor.ErrTooManyFailures)
	assert.Equal(t, fetches, r.fake.FetchCount())
	assert.Equal(t, 1, r.trips)
}

func TestSync_ManualFailureIsFatal(t *testing.T) {
	r := newRig(t, true)
	r.fake.SetFetchErr(errors.New("timeout"))

	err := r.eng.Sync(ctx, AllIOs, false)
	require.ErrorIs(t, err, governor.ErrTooManyFailures)
	assert.Equal(t, 1, r.trips)
	assert.True(t, r.gov.Tripped())
}

func TestSync_ReleasesLockOnError(t *testing.T) {
	r := newRig(t, true)
	require.NoError(t, r.gov.SetAutoRefresh(true))

	r.fake.SetFetchErr(errors.New("boom"))
	require.Error(t, r.eng.Sync(ctx, AllIOs, false))

	r.fake.SetFetchErr(nil)
	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))
	assert.Zero(t, r.gov.Snapshot().Failures)
}

func TestCommit_WriteThroughSendsSingleItem(t *testing.T) {
	r := newRig(t, true)
	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))

	require.NoError(t, r.eng.BeginEdit(ref("O_2")))
	require.NoError(t, r.eng.Commit(ctx, ref("O_2"), image.Int64(0x0102), true))

	require.Equal(t, 1, r.fake.BatchCount())
	require.Len(t, r.fake.Batches[0], 1)
	assert.Equal(t, "O_2", r.fake.Batches[0][0].IO)

	img := r.fake.CurrentImage()
	assert.Equal(t, []byte{0x02, 0x01}, img[4:6])
	assert.False(t, r.store.Locked(ref("O_2")))
}

func TestCommit_InvalidValueReverts(t *testing.T) {
	r := newRig(t, true)
	r.fake.SetImage([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x11})
	require.NoError(t, r.eng.Sync(ctx, AllIOs, false))

	require.NoError(t, r.eng.BeginEdit(ref("O_3")))
	err := r.eng.Commit(ctx, ref("O_3"), image.Int64(256), true)
	require.ErrorIs(t, err, codec.ErrInvalidValue)

	assert.Equal(t, int64(0x11), r.value(t, "O_3").Int().Int64())
	assert.False(t, r.store.Locked(ref("O_3")))
	assert.Zero(t, r.fake.BatchCount())
}

func TestBeginEdit_RejectsInputs(t *testing.T) {
	r := newRig(t, true)
	assert.ErrorIs(t, r.eng.BeginEdit(ref("I_2")), ErrNotEditable)
	assert.ErrorIs(t, r.eng.BeginEdit(ref("nope")), ErrNotEditable)
}

func TestRevert_RestoresPreEditValue(t *testing.T) {
	r := newRig(t, true)
	require.NoError(t, r.eng.BeginEdit(ref("O_1")))

	v, err := r.eng.Revert(ref("O_1"))
	require.NoError(t, err)
	assert.False(t, v.Bool())
	assert.False(t, r.store.Locked(ref("O_1")))
}

func TestBounds(t *testing.T) {
	r := newRig(t, true)

	lo, hi, err := r.eng.Bounds(ref("O_2"))
	require.NoError(t, err)
	assert.Equal(t, "0", lo)
	assert.Equal(t, "65535", hi)

	_, _, err = r.eng.Bounds(ref("missing"))
	assert.ErrorIs(t, err, store.ErrUnknownIO)
}
