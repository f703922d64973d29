package gpio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	writes [][]byte
}

func (b *fakeBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	cp := append([]byte(nil), buffer...)
	b.writes = append(b.writes, cp)
	return nil
}

func (b *fakeBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return nil
}

func TestInitOutputsWritesIODIRWithGreenRedAsOutputs(t *testing.T) {
	bus := &fakeBus{}
	m := NewMCP23017(bus, 0)

	require.NoError(t, m.InitOutputs(context.Background()))
	require.Len(t, bus.writes, 1)
	assert.Equal(t, []byte{byte(regIODIRA), ^outputMask}, bus.writes[0])
}

func TestSetPinsMasksToOutputBitsOnly(t *testing.T) {
	bus := &fakeBus{}
	m := NewMCP23017(bus, 0)

	require.NoError(t, m.SetPins(context.Background(), 0xFF))
	require.Len(t, bus.writes, 1)
	assert.Equal(t, []byte{byte(regOLATA), outputMask}, bus.writes[0])
}

func TestDefaultAddressUsedWhenZero(t *testing.T) {
	m := NewMCP23017(&fakeBus{}, 0)
	assert.Equal(t, byte(DefaultMCP23017Address), m.address)
}
