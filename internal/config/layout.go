// internal/config/layout.go
package config

import (
	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/transport"
)

// Descriptor converts a validated layout entry.
func (io IOLayout) Descriptor(dir image.Direction) image.IoDescriptor {
	order, _ := image.ParseByteOrder(io.ByteOrder)
	bit := image.WholeByte
	if io.Bit != nil {
		bit = *io.Bit
	}
	return image.IoDescriptor{
		Name:       io.Name,
		Direction:  dir,
		ByteLength: io.ByteLength,
		ByteOffset: io.ByteOffset,
		BitOffset:  bit,
		ByteOrder:  order,
		Signed:     io.Signed,
	}
}

// Catalogue returns the device list and IO descriptors of a modbus layout.
func (m *ModbusConfig) Catalogue() ([]transport.Device, map[int][]image.IoDescriptor, map[int][]image.IoDescriptor) {
	devices := make([]transport.Device, 0, len(m.Devices))
	inputs := make(map[int][]image.IoDescriptor, len(m.Devices))
	outputs := make(map[int][]image.IoDescriptor, len(m.Devices))

	for _, d := range m.Devices {
		devices = append(devices, transport.Device{ID: d.ID, Name: d.Name})
		for _, io := range d.Inputs {
			inputs[d.ID] = append(inputs[d.ID], io.Descriptor(image.Input))
		}
		for _, io := range d.Outputs {
			outputs[d.ID] = append(outputs[d.ID], io.Descriptor(image.Output))
		}
	}
	return devices, inputs, outputs
}
