// Package codec implements the SCD40 wire protocol: command framing,
// CRC-8 verification, and raw-word-to-physical-value conversion. It has no
// knowledge of I2C transport or retry policy; the transport package drives
// it.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc8"
)

// Command words, big-endian on the wire, per the SCD40/SCD41 datasheet.
// Values match periph.io's scd4x driver exactly.
const (
	CmdStartPeriodic    uint16 = 0x21B1
	CmdReadMeasurement  uint16 = 0xEC05
	CmdStopPeriodic     uint16 = 0x3F86
	CmdGetSerialNumber  uint16 = 0x3682
)

// DefaultAddress is the SCD40's only supported 7-bit I2C slave address.
const DefaultAddress = 0x62

// FrameSize is the length of the 9-byte measurement response: three
// (word, crc) tuples for CO2, temperature and humidity, in that order.
const FrameSize = 9

// crcTable implements CRC-8 with polynomial 0x31, initial value 0xFF,
// MSB-first, no reflection and no final XOR — the Sensirion checksum used
// by the whole SHT/SCD/SGP family. Grounded on the same crc8.Params shape
// used across the sensor pack for Sensirion/Bosch parts.
var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7, // crc8.Checksum([]byte("123456789"), crcTable); the conventional CRC-8/NRSC-5-style check value
	Name:   "CRC-8/SCD4x",
})

// CRC8 computes the Sensirion CRC-8 checksum over two data bytes.
func CRC8(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}

// EncodeCommand returns the two big-endian bytes sent on the wire for a
// 16-bit command word.
func EncodeCommand(cmd uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, cmd)
	return b
}

// FrameError indicates the 9-byte measurement response failed CRC
// verification or had the wrong length — a retryable condition per the
// transport's failure taxonomy.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string { return "scd40: frame error: " + e.Reason }

// ValidationError indicates a physically converted value fell outside its
// valid range — also retryable.
type ValidationError struct {
	Field string
	Value float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scd40: %s out of range: %v", e.Field, e.Value)
}

// Words holds the three raw 16-bit measurement words extracted from a
// verified frame, before physical conversion.
type Words struct {
	CO2Raw         uint16
	TemperatureRaw uint16
	HumidityRaw    uint16
}

// DecodeFrame verifies the CRC-8 of each of the three (word, crc) tuples in
// a 9-byte measurement response and extracts the raw words. It never
// panics: malformed input always yields a *FrameError.
func DecodeFrame(frame []byte) (Words, error) {
	if len(frame) != FrameSize {
		return Words{}, &FrameError{Reason: fmt.Sprintf("expected %d bytes, got %d", FrameSize, len(frame))}
	}
	var w Words
	raws := [3]*uint16{&w.CO2Raw, &w.TemperatureRaw, &w.HumidityRaw}
	names := [3]string{"co2", "temperature", "humidity"}
	for i := 0; i < 3; i++ {
		off := i * 3
		data := frame[off : off+2]
		gotCRC := frame[off+2]
		wantCRC := CRC8(data)
		if gotCRC != wantCRC {
			return Words{}, &FrameError{Reason: fmt.Sprintf("%s crc mismatch: got %#x want %#x", names[i], gotCRC, wantCRC)}
		}
		*raws[i] = binary.BigEndian.Uint16(data)
	}
	return w, nil
}

// Physical holds the converted physical values. Each pointer is nil iff the
// corresponding raw word was exactly zero (the SCD40's "no data" sentinel).
type Physical struct {
	CO2PPM      *float32
	TemperatureC *float32
	HumidityPct  *float32
	Quality      uint32
}

// QualityBit values, matching record.Flag* exactly so callers can assign
// Physical.Quality directly into a record.Reading.
const (
	FlagCO2Valid      uint32 = 1 << 0
	FlagTempValid     uint32 = 1 << 1
	FlagHumidityValid uint32 = 1 << 2
)

// Convert turns raw measurement words into physical values and a quality
// bitmask, per the SCD40 datasheet formulas. A raw value of 0 means "no
// data" and is reported as absent rather than zero.
func Convert(w Words) Physical {
	var p Physical

	if w.CO2Raw != 0 {
		v := float32(w.CO2Raw)
		p.CO2PPM = &v
		if w.CO2Raw >= 400 && w.CO2Raw <= 40000 {
			p.Quality |= FlagCO2Valid
		}
	}

	if w.TemperatureRaw != 0 {
		v := float32(-45.0 + 175.0*float64(w.TemperatureRaw)/65536.0)
		p.TemperatureC = &v
		if v >= -40 && v <= 70 {
			p.Quality |= FlagTempValid
		}
	}

	if w.HumidityRaw != 0 {
		v := float32(100.0 * float64(w.HumidityRaw) / 65536.0)
		p.HumidityPct = &v
		if v >= 0 && v <= 100 {
			p.Quality |= FlagHumidityValid
		}
	}

	return p
}

// AllValid reports whether every present value passed validation — the
// transport treats a partially-invalid reading as a failed read-cycle for
// retry purposes.
func (p Physical) AllValid() bool {
	if p.CO2PPM != nil && p.Quality&FlagCO2Valid == 0 {
		return false
	}
	if p.TemperatureC != nil && p.Quality&FlagTempValid == 0 {
		return false
	}
	if p.HumidityPct != nil && p.Quality&FlagHumidityValid == 0 {
		return false
	}
	return true
}
