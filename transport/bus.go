// Package transport implements the resilient I2C acquisition engine that
// drives an SCD40 sensor: connection management, retry with exponential
// backoff, and per-read statistics. It is backend-agnostic over the actual
// I2C wire access, via the I2CBus interface below.
package transport

import (
	"context"
	"errors"
)

// AddressableReader reads a fixed-size buffer from a 7-bit I2C address.
type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

// AddressableWriter writes a buffer to a 7-bit I2C address.
type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
}

// I2CBus is the minimal interface a concrete I2C backend (native bus,
// USB-to-I2C bridge, ...) must satisfy to drive the SCD40Transport.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// ErrBusBusy is returned by a backend when the underlying engine reports it
// could not complete a transfer and had to be force-released.
var ErrBusBusy = errors.New("i2c: bus busy")
