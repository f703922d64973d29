// Package adapter implements a transport.I2CBus backed by a Microchip
// MCP2221 USB-to-I2C bridge (vendor 0x04D8, product 0x00DD), for running the
// acquisition core against a real SCD40 on a workstation that has no native
// I2C controller.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/sensord/console"
	"github.com/mklimuk/sensord/snsctx"
	"github.com/mklimuk/sensord/transport"
)

// VendorID and ProductID identify the MCP2221(a) HID device on the USB bus.
const (
	VendorID  = 0x04D8
	ProductID = 0x00DD
)

var chipDelay = 5 * time.Millisecond

// MCP2221 drives the adapter's USB-HID command set for I2C read/write, per
// the datasheet's 64-byte report format. It implements transport.I2CBus.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	vendorID     uint16
	productID    uint16
	device       *hid.Device
}

// Status reports the adapter's last I2C transfer bookkeeping, as exposed by
// command 0x10.
type Status struct {
	I2CDataBufferCounter   int
	I2CSpeedDivider        int
	I2CTimeout             int
	CurrentAddress         string
	I2CAddress             byte
	LastI2CRequestedSize   uint16
	LastI2CTransferredSize uint16
}

func NewMCP2221() *MCP2221 {
	return &MCP2221{
		request:  make([]byte, 64),
		response: make([]byte, 64),
		vendorID: VendorID,
		productID: ProductID,
	}
}

// Init is a no-op: karalabe/hid devices are opened per-transaction in
// connect(), so there is nothing to hold open ahead of time.
func (d *MCP2221) Init() error { return nil }

func (d *MCP2221) connect() error {
	devices := hid.Enumerate(d.vendorID, d.productID)
	if len(devices) == 0 {
		return fmt.Errorf("could not find hid device vendor: %#x product: %#x", d.vendorID, d.productID)
	}
	device, err := devices[0].Open()
	if err != nil {
		return fmt.Errorf("could not open hid device vendor: %#x product: %#x: %w", d.vendorID, d.productID, err)
	}
	d.device = device
	return nil
}

func (d *MCP2221) disconnect() error {
	if d.device != nil {
		err := d.device.Close()
		d.device = nil
		if err != nil {
			return fmt.Errorf("could not close hid device: %w", err)
		}
	}
	return nil
}

// WriteToAddr issues an I2C write to the given 7-bit address via command
// 0x90.
func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x90
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	if len(buffer) > 0 {
		copy(d.request[4:], buffer)
	}
	if err := d.connect(); err != nil {
		return fmt.Errorf("could not connect to mcp2221: %w", err)
	}
	defer d.closeLogged()

	if err := d.send(ctx); err != nil {
		return fmt.Errorf("i2c write to %#x request write failed: %w", address, err)
	}
	if err := d.waitAndReceive(ctx, chipDelay); err != nil {
		return fmt.Errorf("i2c write to %#x response read failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		slog.Debug("i2c bus busy, releasing bus", "state", d.response[2])
		if _, err := d.doReleaseBus(ctx); err != nil {
			return fmt.Errorf("%w; could not release bus: %v", transport.ErrBusBusy, err)
		}
		return transport.ErrBusBusy
	}
	return nil
}

// ReadFromAddr issues an I2C read from the given 7-bit address via commands
// 0x91 (start read) then 0x40 (fetch buffered data).
func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x91
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	if err := d.connect(); err != nil {
		return fmt.Errorf("could not connect to mcp2221: %w", err)
	}
	defer d.closeLogged()

	if err := d.send(ctx); err != nil {
		return fmt.Errorf("i2c read from %#x request failed: %w", address, err)
	}
	if err := d.receive(ctx); err != nil {
		return fmt.Errorf("i2c read from %#x response receive failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		slog.Debug("i2c bus busy, releasing bus", "state", d.response[2])
		if _, err := d.doReleaseBus(ctx); err != nil {
			return fmt.Errorf("%w; could not release bus: %v", transport.ErrBusBusy, err)
		}
		return transport.ErrBusBusy
	}

	d.request[0] = 0x40
	resetBuffer(d.response)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting i2c read data from adapter: %w", err)
	}
	if err := d.waitAndReceive(ctx, chipDelay); err != nil {
		return fmt.Errorf("i2c read from %#x response receive failed: %w", address, err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("error reading the i2c slave data from the i2c engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

// Status returns the adapter's current I2C transfer bookkeeping.
func (d *MCP2221) Status(ctx context.Context) (*Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.doGetStatus(ctx)
}

func (d *MCP2221) doGetStatus(ctx context.Context) (*Status, error) {
	d.resetBuffers()
	d.request[0] = 0x10
	if err := d.connect(); err != nil {
		return nil, fmt.Errorf("could not connect to mcp2221: %w", err)
	}
	defer d.closeLogged()
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("could not send status request: %w", err)
	}
	if err := d.receive(ctx); err != nil {
		return nil, fmt.Errorf("could not receive status: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *Status {
	status := &Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
		I2CAddress:           buffer[16],
	}
	status.LastI2CRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastI2CTransferredSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// ReleaseBus forces the adapter to abandon a stuck I2C transaction, via
// command 0x10 with subcommand 0x10.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.connect(); err != nil {
		return nil, fmt.Errorf("could not connect to mcp2221: %w", err)
	}
	defer d.closeLogged()
	return d.doReleaseBus(ctx)
}

func (d *MCP2221) doReleaseBus(ctx context.Context) (*Status, error) {
	d.resetBuffers()
	d.request[0] = 0x10
	d.request[2] = 0x10
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	if err := d.waitAndReceive(ctx, chipDelay); err != nil {
		return nil, fmt.Errorf("release response read failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) waitAndReceive(ctx context.Context, delay time.Duration) error {
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := d.receive(ctx); err != nil {
		return fmt.Errorf("i2c receive failed: %w", err)
	}
	return nil
}

func (d *MCP2221) send(ctx context.Context) error {
	if snsctx.IsVerbose(ctx) {
		console.Printf("sending message to mcp2221:\n%s\n", hex.Dump(d.request))
	}
	n, err := d.device.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	return nil
}

func (d *MCP2221) receive(ctx context.Context) error {
	n, err := d.device.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if snsctx.IsVerbose(ctx) {
		console.Printf("read message from adapter:\n%s\n", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) closeLogged() {
	if err := d.disconnect(); err != nil {
		slog.Error("could not disconnect from mcp2221", "err", err)
	}
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := 0; i < len(buf)-1; i++ {
		buf[i] = 0x00
	}
}

var _ transport.I2CBus = (*MCP2221)(nil)
