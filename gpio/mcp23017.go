// Package gpio drives an MCP23017 I2C GPIO expander. sensord uses it for a
// single purpose: a two-pin status indicator (green/red) wired by the
// health package, so only port A's output path is implemented.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/sensord/transport"
)

type registry byte

const DefaultMCP23017Address = 0x21

const (
	regIODIRA registry = 0x00
	regGPIOA  registry = 0x12
	regOLATA  registry = 0x14
)

// PinGreen and PinRed are the two output bits SetPins drives; the remaining
// six bits of port A are left as inputs and untouched.
const (
	PinGreen byte = 1 << 0
	PinRed   byte = 1 << 1

	outputMask byte = PinGreen | PinRed
)

// releaser is satisfied by bus backends that can force-release a stuck
// transfer after transport.ErrBusBusy; backends without it are simply
// retried. adapter.MCP2221 does not match it (its ReleaseBus also returns a
// status); it releases the bus itself before returning ErrBusBusy.
type releaser interface {
	ReleaseBus(ctx context.Context) error
}

// MCP23017 is a minimal driver for the expander's port-A output path.
type MCP23017 struct {
	mx         sync.Mutex
	bus        transport.I2CBus
	address    byte
	retryLimit int
}

func NewMCP23017(bus transport.I2CBus, address byte) *MCP23017 {
	if address == 0 {
		address = DefaultMCP23017Address
	}
	return &MCP23017{retryLimit: 2, bus: bus, address: address}
}

func (m *MCP23017) writeRegistry(ctx context.Context, reg registry, value byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = m.bus.WriteToAddr(ctx, m.address, []byte{byte(reg), value})
		if err == nil {
			return nil
		}
		if !errors.Is(err, transport.ErrBusBusy) {
			return fmt.Errorf("could not write mcp23017 register %#x: %w", byte(reg), err)
		}
		if r, ok := m.bus.(releaser); ok {
			_ = r.ReleaseBus(ctx)
		}
	}
	return fmt.Errorf("could not write mcp23017 register %#x (retry limit reached): %w", byte(reg), err)
}

// InitOutputs configures the green/red pins of port A as outputs, leaving
// the rest of the port as inputs (IODIR bit set = input).
func (m *MCP23017) InitOutputs(ctx context.Context) error {
	return m.writeRegistry(ctx, regIODIRA, ^outputMask)
}

// SetPins drives port A's output latch. Only the green/red bits have any
// effect since the rest of the port remains configured as input.
func (m *MCP23017) SetPins(ctx context.Context, value byte) error {
	return m.writeRegistry(ctx, regOLATA, value&outputMask)
}
