package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC8Golden(t *testing.T) {
	require.Equal(t, byte(0x92), CRC8([]byte{0xBE, 0xEF}))
}

func frameFor(co2, temp, hum uint16) []byte {
	frame := make([]byte, FrameSize)
	words := []uint16{co2, temp, hum}
	for i, w := range words {
		off := i * 3
		frame[off] = byte(w >> 8)
		frame[off+1] = byte(w)
		frame[off+2] = CRC8(frame[off : off+2])
	}
	return frame
}

func TestDecodeFrameValid(t *testing.T) {
	frame := frameFor(450, 0x6666, 0x8000)
	w, err := DecodeFrame(frame)
	require.NoError(t, err)
	require.Equal(t, uint16(450), w.CO2Raw)
	require.Equal(t, uint16(0x6666), w.TemperatureRaw)
	require.Equal(t, uint16(0x8000), w.HumidityRaw)
}

func TestDecodeFrameRejectsCorruptCRC(t *testing.T) {
	frame := frameFor(450, 0x6666, 0x8000)
	frame[0] ^= 0xFF // corrupt first CRC's data byte without fixing checksum
	_, err := DecodeFrame(frame)
	require.Error(t, err)
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
}

func TestDecodeFrameRejectsWrongLength(t *testing.T) {
	_, err := DecodeFrame(make([]byte, 8))
	require.Error(t, err)
}

func TestDecodeFrameNeverPanicsOnGarbage(t *testing.T) {
	inputs := [][]byte{nil, {}, {1, 2, 3}, make([]byte, 100)}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panicked on %v: %v", in, r)
				}
			}()
			_, _ = DecodeFrame(in)
		}()
	}
}

func TestConvertTemperature(t *testing.T) {
	p := Convert(Words{TemperatureRaw: 0x6666})
	require.NotNil(t, p.TemperatureC)
	require.InDelta(t, 25.00025, float64(*p.TemperatureC), 0.001)
	require.NotZero(t, p.Quality&FlagTempValid)
}

func TestConvertHumidityExact(t *testing.T) {
	p := Convert(Words{HumidityRaw: 0x8000})
	require.NotNil(t, p.HumidityPct)
	require.InDelta(t, 50.0, float64(*p.HumidityPct), 1e-6)
}

func TestConvertCO2Range(t *testing.T) {
	cases := []struct {
		raw   uint16
		valid bool
	}{
		{0, false},     // absent sentinel
		{399, false},   // present but below range
		{400, true},
		{40000, true},
		{40001, false},
	}
	for _, c := range cases {
		p := Convert(Words{CO2Raw: c.raw})
		if c.raw == 0 {
			require.Nil(t, p.CO2PPM)
			continue
		}
		require.NotNil(t, p.CO2PPM)
		require.Equal(t, c.valid, p.Quality&FlagCO2Valid != 0, "raw=%d", c.raw)
	}
}

func TestAllValidRequiresEveryPresentFieldValid(t *testing.T) {
	p := Convert(Words{CO2Raw: 100, TemperatureRaw: 0x6666, HumidityRaw: 0x8000})
	require.False(t, p.AllValid()) // co2=100ppm is present but below the 400ppm floor

	p2 := Convert(Words{CO2Raw: 450, TemperatureRaw: 0x6666, HumidityRaw: 0x8000})
	require.True(t, p2.AllValid())
}

func TestEncodeCommand(t *testing.T) {
	require.Equal(t, []byte{0x21, 0xB1}, EncodeCommand(CmdStartPeriodic))
	require.Equal(t, []byte{0xEC, 0x05}, EncodeCommand(CmdReadMeasurement))
}
