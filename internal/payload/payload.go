// Package payload decodes raw GATT characteristic values into sensor readings.
//
// Decoding never fails: malformed input degrades to a fallback value. The
// temperature and humidity fallback is the last value decoded by the same
// Decoder, so one Decoder must be used per device session.
package payload

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"time"
)

// Kind identifies the quantity carried by a Reading.
type Kind int

const (
	KindTemperature Kind = iota
	KindHumidity
	KindHeartRate
)

func (k Kind) String() string {
	switch k {
	case KindTemperature:
		return "temperature"
	case KindHumidity:
		return "humidity"
	case KindHeartRate:
		return "heart_rate"
	default:
		return "unknown"
	}
}

// Reading is a single decoded sensor value.
type Reading struct {
	Kind  Kind
	Value float32
}

// Decoder holds the last decoded temperature and humidity of one session.
// It is not safe for concurrent use.
type Decoder struct {
	temperature float32
	humidity    float32
}

// NewDecoder returns a Decoder whose fallback values are zero.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Temperature decodes a little-endian int16 in hundredths of a degree Celsius.
// Buffers shorter than two bytes yield the previously decoded temperature.
func (d *Decoder) Temperature(data []byte) float32 {
	if v, ok := hundredths(data); ok {
		d.temperature = v
	}
	return d.temperature
}

// Humidity decodes a little-endian int16 in hundredths of a percent.
// Buffers shorter than two bytes yield the previously decoded humidity.
func (d *Decoder) Humidity(data []byte) float32 {
	if v, ok := hundredths(data); ok {
		d.humidity = v
	}
	return d.humidity
}

// Decode dispatches data to the decoder for kind.
func (d *Decoder) Decode(kind Kind, data []byte) Reading {
	switch kind {
	case KindTemperature:
		return Reading{Kind: kind, Value: d.Temperature(data)}
	case KindHumidity:
		return Reading{Kind: kind, Value: d.Humidity(data)}
	case KindHeartRate:
		return Reading{Kind: kind, Value: float32(HeartRate(data))}
	default:
		return Reading{Kind: kind}
	}
}

func hundredths(data []byte) (float32, bool) {
	if len(data) < 2 {
		return 0, false
	}
	raw := int16(binary.LittleEndian.Uint16(data))
	return float32(float64(raw) / 100.0), true
}

const heartRateValueFormat = 0x01

// HeartRate decodes a Heart Rate Measurement value. Bit 0 of the flags byte
// selects a 16-bit value over an 8-bit one. A buffer too short for the selected
// width decodes to 0.
func HeartRate(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	if data[0]&heartRateValueFormat != 0 {
		if len(data) < 3 {
			return 0
		}
		return binary.LittleEndian.Uint16(data[1:3])
	}
	return uint16(data[1])
}

// BatteryLevel returns the battery percentage byte, or 0 for an empty buffer.
func BatteryLevel(data []byte) uint8 {
	if len(data) == 0 {
		return 0
	}
	return data[0]
}

// String decodes a UTF-8 string characteristic. Invalid sequences are replaced
// and trailing NUL padding is dropped; whitespace is kept as sent.
func String(data []byte) string {
	return strings.ToValidUTF8(string(bytes.TrimRight(data, "\x00")), "\uFFFD")
}

// TemperatureType is the body location reported by a health thermometer.
type TemperatureType uint8

// TemperatureMeasurement is a decoded Health Thermometer measurement (0x2A1C).
type TemperatureMeasurement struct {
	Value      float64
	Fahrenheit bool
	Timestamp  time.Time // zero when absent
	Type       TemperatureType
	HasType    bool
}

const (
	tmFlagFahrenheit = 0x01
	tmFlagTimestamp  = 0x02
	tmFlagType       = 0x04

	tmValueOffset     = 1
	tmTimestampOffset = 5
	tmTimestampLen    = 7
)

// DecodeTemperatureMeasurement decodes a Health Thermometer measurement. ok is
// false when data is too short to carry the flags byte and the value.
func DecodeTemperatureMeasurement(data []byte) (m TemperatureMeasurement, ok bool) {
	if len(data) < tmTimestampOffset {
		return m, false
	}

	flags := data[0]
	m.Fahrenheit = flags&tmFlagFahrenheit != 0
	m.Value = medFloat32(binary.LittleEndian.Uint32(data[tmValueOffset:tmTimestampOffset]))

	next := tmTimestampOffset
	if flags&tmFlagTimestamp != 0 && len(data) >= next+tmTimestampLen {
		ts := data[next : next+tmTimestampLen]
		m.Timestamp = time.Date(
			int(binary.LittleEndian.Uint16(ts[0:2])),
			time.Month(ts[2]), int(ts[3]),
			int(ts[4]), int(ts[5]), int(ts[6]),
			0, time.UTC,
		)
		next += tmTimestampLen
	}

	if flags&tmFlagType != 0 && len(data) > next {
		m.Type = TemperatureType(data[next])
		m.HasType = true
	}
	return m, true
}

// IEEE 11073-20601 FLOAT special mantissas.
const (
	medNaN       = 0x007FFFFF
	medNRes      = 0x00800000
	medPlusInf   = 0x007FFFFE
	medMinusInf  = 0x00800002
	medReserved  = 0x00800001
	medMantMask  = 0x00FFFFFF
	medMantSign  = 0x00800000
	medExpShift  = 24
	medMantRange = 0x01000000
)

// medFloat32 converts an IEEE 11073 32-bit FLOAT (8-bit exponent, 24-bit
// mantissa, both two's complement) to float64.
func medFloat32(raw uint32) float64 {
	mantissa := int32(raw & medMantMask)
	switch mantissa {
	case medNaN, medNRes, medReserved:
		return math.NaN()
	case medPlusInf:
		return math.Inf(1)
	case medMinusInf:
		return math.Inf(-1)
	}
	if mantissa&medMantSign != 0 {
		mantissa -= medMantRange
	}
	exponent := int8(raw >> medExpShift)
	return float64(mantissa) * math.Pow10(int(exponent))
}
