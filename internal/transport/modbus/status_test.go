// internal/transport/modbus/status_test.go
package modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/procimg-watch/internal/transport"
)

func TestDialStatus_Validates(t *testing.T) {
	_, err := DialStatus(StatusConfig{})
	require.Error(t, err)
}

func TestStatusClient_WritesHighByteFirst(t *testing.T) {
	b := &bank{mem: make([]byte, 2*20)}
	c := &StatusClient{regs: b}

	require.NoError(t, c.WriteRegisters(10, []uint16{0x0102, 0xA0B0}))

	assert.Equal(t, [][2]uint16{{10, 2}}, b.writes)
	assert.Equal(t, []byte{0x01, 0x02, 0xA0, 0xB0}, b.mem[20:24])
	assert.NoError(t, c.Close())
}

func TestStatusClient_EmptyWriteMakesNoCall(t *testing.T) {
	b := &bank{}
	c := &StatusClient{regs: b}

	require.NoError(t, c.WriteRegisters(0, nil))
	assert.Empty(t, b.writes)
}

func TestStatusClient_TooManyRegisters(t *testing.T) {
	c := &StatusClient{regs: &bank{}}
	require.Error(t, c.WriteRegisters(0, make([]uint16, MaxWriteRegisters+1)))
}

func TestStatusClient_TransportFailure(t *testing.T) {
	b := &bank{mem: make([]byte, 4), writeErr: errors.New("broken pipe")}
	c := &StatusClient{regs: b}

	err := c.WriteRegisters(0, []uint16{1})
	require.Error(t, err)

	var te *transport.Error
	assert.ErrorAs(t, err, &te)
}
