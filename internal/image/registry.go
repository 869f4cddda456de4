// internal/image/registry.go
package image

import (
	"fmt"
	"sort"
)

// Device is one piece of hardware exposing IOs in the process image.
type Device struct {
	ID   int
	Name string
}

type deviceIOs struct {
	inputs  []IoDescriptor
	outputs []IoDescriptor
}

// Registry is the per-session catalogue of every IO. It is built once from the
// two remote catalogues and never mutated afterwards.
type Registry struct {
	devices []Device
	ios     map[int]*deviceIOs
	index   map[Ref]IoDescriptor
}

// NewRegistry validates and indexes the catalogues.
// Descriptor directions are forced from the catalogue they came from.
func NewRegistry(devices []Device, inputs, outputs map[int][]IoDescriptor) (*Registry, error) {
	r := &Registry{
		devices: make([]Device, 0, len(devices)),
		ios:     make(map[int]*deviceIOs, len(devices)),
		index:   make(map[Ref]IoDescriptor),
	}

	for _, d := range devices {
		if _, dup := r.ios[d.ID]; dup {
			return nil, fmt.Errorf("image: duplicate device %d", d.ID)
		}
		r.devices = append(r.devices, d)
		r.ios[d.ID] = &deviceIOs{}
	}
	sort.Slice(r.devices, func(i, j int) bool { return r.devices[i].ID < r.devices[j].ID })

	add := func(catalogue map[int][]IoDescriptor, dir Direction) error {
		for devID, list := range catalogue {
			dev, ok := r.ios[devID]
			if !ok {
				return fmt.Errorf("image: %s catalogue references unknown device %d", dir, devID)
			}
			for _, d := range list {
				d.Direction = dir
				if err := d.validate(); err != nil {
					return fmt.Errorf("device %d: %w", devID, err)
				}
				ref := Ref{Device: devID, Name: d.Name}
				if _, dup := r.index[ref]; dup {
					return fmt.Errorf("image: device %d: duplicate io %q", devID, d.Name)
				}
				r.index[ref] = d
				if dir == Input {
					dev.inputs = append(dev.inputs, d)
				} else {
					dev.outputs = append(dev.outputs, d)
				}
			}
		}
		return nil
	}

	if err := add(inputs, Input); err != nil {
		return nil, err
	}
	if err := add(outputs, Output); err != nil {
		return nil, err
	}
	return r, nil
}

// Devices returns the devices ordered by ID.
func (r *Registry) Devices() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Device looks up one device.
func (r *Registry) Device(id int) (Device, bool) {
	for _, d := range r.devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// DeviceName returns the display name, or the numeric ID when unknown.
func (r *Registry) DeviceName(id int) string {
	if d, ok := r.Device(id); ok && d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("%d", id)
}

// Inputs returns the input descriptors of one device in catalogue order.
func (r *Registry) Inputs(device int) []IoDescriptor {
	if d, ok := r.ios[device]; ok {
		return append([]IoDescriptor(nil), d.inputs...)
	}
	return nil
}

// Outputs returns the output descriptors of one device in catalogue order.
func (r *Registry) Outputs(device int) []IoDescriptor {
	if d, ok := r.ios[device]; ok {
		return append([]IoDescriptor(nil), d.outputs...)
	}
	return nil
}

// Lookup finds a descriptor by reference.
func (r *Registry) Lookup(ref Ref) (IoDescriptor, bool) {
	d, ok := r.index[ref]
	return d, ok
}

// Len is the total number of IOs.
func (r *Registry) Len() int { return len(r.index) }

// Each visits every IO, device by device, inputs before outputs.
func (r *Registry) Each(fn func(ref Ref, d IoDescriptor)) {
	for _, dev := range r.devices {
		ios := r.ios[dev.ID]
		for _, d := range ios.inputs {
			fn(Ref{Device: dev.ID, Name: d.Name}, d)
		}
		for _, d := range ios.outputs {
			fn(Ref{Device: dev.ID, Name: d.Name}, d)
		}
	}
}

// ImageLength is the smallest process image that holds every IO window.
func (r *Registry) ImageLength() int {
	n := 0
	for _, d := range r.index {
		if d.End() > n {
			n = d.End()
		}
	}
	return n
}
