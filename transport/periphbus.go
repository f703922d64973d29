package transport

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ I2CBus = (*PeriphBus)(nil)

// PeriphBus is the default I2CBus backend: a native Linux I2C controller
// opened through periph.io's host and i2creg registries (e.g. /dev/i2c-1 on
// a Raspberry Pi).
type PeriphBus struct {
	bus i2c.BusCloser
}

// NewPeriphBus initializes the periph.io host drivers and opens the named
// I2C device.
func NewPeriphBus(dev string) (*PeriphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	slog.Debug("opening i2c bus", "device", dev)
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %q: %w", dev, err)
	}
	return &PeriphBus{bus: bus}, nil
}

func (b *PeriphBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := b.bus.Tx(uint16(address), nil, buffer); err != nil {
		return fmt.Errorf("could not read from i2c bus %#x: %w", address, err)
	}
	slog.Debug("i2c read completed", "address", address, "buffer", hex.EncodeToString(buffer))
	return nil
}

func (b *PeriphBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	slog.Debug("writing to i2c bus", "address", address, "buffer", hex.EncodeToString(buffer))
	if err := b.bus.Tx(uint16(address), buffer, nil); err != nil {
		return fmt.Errorf("could not write to i2c bus %#x: %w", address, err)
	}
	return nil
}

// SetSpeed configures the bus clock frequency in Hz.
func (b *PeriphBus) SetSpeed(speedHz int64) error {
	return b.bus.SetSpeed(physic.Frequency(speedHz))
}

// Close releases the underlying bus handle.
func (b *PeriphBus) Close() error {
	return b.bus.Close()
}
