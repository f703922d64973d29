// Package record defines the Reading type stored by the time-series store
// and its self-describing binary encoding.
package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Quality bit positions, per the SCD40 validation policy in the codec package.
const (
	FlagCO2Valid      uint32 = 1 << 0
	FlagTempValid     uint32 = 1 << 1
	FlagHumidityValid uint32 = 1 << 2
)

// Reading is a single timestamped observation. Each of CO2, Temperature and
// Humidity is independently present-or-absent; Quality records whether a
// present value was also within its validation range.
type Reading struct {
	Timestamp   time.Time
	CO2PPM      *float32
	TempC       *float32
	HumidityPct *float32
	Quality     uint32
}

// HasAny reports whether at least one measurement is present. The daemon
// control loop rejects readings for which this is false.
func (r Reading) HasAny() bool {
	return r.CO2PPM != nil || r.TempC != nil || r.HumidityPct != nil
}

// Equal compares two readings by value, including pointer-field contents,
// at microsecond timestamp resolution. Used by round-trip tests.
func (r Reading) Equal(o Reading) bool {
	if !r.Timestamp.Equal(o.Timestamp) {
		return false
	}
	if r.Quality != o.Quality {
		return false
	}
	return floatPtrEqual(r.CO2PPM, o.CO2PPM) &&
		floatPtrEqual(r.TempC, o.TempC) &&
		floatPtrEqual(r.HumidityPct, o.HumidityPct)
}

func floatPtrEqual(a, b *float32) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return *a == *b
}

// field tags for the tagged binary encoding. New tags may be appended without
// breaking old readers; old tags are never repurposed.
const (
	tagTimestampUs uint8 = 0x01
	tagCO2PPM      uint8 = 0x02
	tagTempC       uint8 = 0x03
	tagHumidityPct uint8 = 0x04
	tagQuality     uint8 = 0x05
)

const formatVersion uint8 = 1

// Serialize encodes a Reading as a version byte followed by a sequence of
// tag(1)/length(1)/value(L) triples. Readers skip tags they don't recognize,
// so adding a future optional field is backward compatible.
func Serialize(r Reading) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, formatVersion)

	buf = appendU64Field(buf, tagTimestampUs, uint64(r.Timestamp.UTC().UnixMicro()))
	if r.CO2PPM != nil {
		buf = appendF32Field(buf, tagCO2PPM, *r.CO2PPM)
	}
	if r.TempC != nil {
		buf = appendF32Field(buf, tagTempC, *r.TempC)
	}
	if r.HumidityPct != nil {
		buf = appendF32Field(buf, tagHumidityPct, *r.HumidityPct)
	}
	buf = appendU32Field(buf, tagQuality, r.Quality)
	return buf
}

func appendU64Field(buf []byte, tag uint8, v uint64) []byte {
	buf = append(buf, tag, 8)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendU32Field(buf []byte, tag uint8, v uint32) []byte {
	buf = append(buf, tag, 4)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendF32Field(buf []byte, tag uint8, v float32) []byte {
	return appendU32Field(buf, tag, math.Float32bits(v))
}

// Deserialize decodes bytes produced by Serialize. Corrupted input never
// panics: truncated or malformed frames yield an error instead of a partial
// Reading. The timestamp and quality fields are required; since Serialize
// always writes quality last, a frame cut at a field boundary is rejected
// too. Unknown tags are skipped using their declared length, so records
// written by a newer version of this format remain readable.
func Deserialize(b []byte) (Reading, error) {
	var r Reading
	if len(b) < 1 {
		return r, fmt.Errorf("record: empty input")
	}
	if b[0] != formatVersion {
		return r, fmt.Errorf("record: unsupported format version %d", b[0])
	}
	pos := 1
	var haveTimestamp, haveQuality bool
	for pos < len(b) {
		if pos+2 > len(b) {
			return r, fmt.Errorf("record: truncated field header at offset %d", pos)
		}
		tag := b[pos]
		length := int(b[pos+1])
		pos += 2
		if pos+length > len(b) {
			return r, fmt.Errorf("record: truncated field value at offset %d", pos)
		}
		value := b[pos : pos+length]
		pos += length

		switch tag {
		case tagTimestampUs:
			if length != 8 {
				return r, fmt.Errorf("record: bad timestamp field length %d", length)
			}
			us := binary.BigEndian.Uint64(value)
			r.Timestamp = time.UnixMicro(int64(us)).UTC()
			haveTimestamp = true
		case tagCO2PPM:
			f, err := decodeF32(value)
			if err != nil {
				return r, fmt.Errorf("record: co2_ppm: %w", err)
			}
			r.CO2PPM = &f
		case tagTempC:
			f, err := decodeF32(value)
			if err != nil {
				return r, fmt.Errorf("record: temperature_c: %w", err)
			}
			r.TempC = &f
		case tagHumidityPct:
			f, err := decodeF32(value)
			if err != nil {
				return r, fmt.Errorf("record: humidity_percent: %w", err)
			}
			r.HumidityPct = &f
		case tagQuality:
			if length != 4 {
				return r, fmt.Errorf("record: bad quality field length %d", length)
			}
			r.Quality = binary.BigEndian.Uint32(value)
			haveQuality = true
		default:
			// unknown field from a newer writer: skip, already advanced past it.
		}
	}
	if !haveTimestamp {
		return Reading{}, fmt.Errorf("record: missing required timestamp field")
	}
	if !haveQuality {
		return Reading{}, fmt.Errorf("record: missing required quality field")
	}
	return r, nil
}

func decodeF32(value []byte) (float32, error) {
	if len(value) != 4 {
		return 0, fmt.Errorf("bad field length %d", len(value))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(value)), nil
}
