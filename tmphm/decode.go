// Package tmphm samples a Sensirion SHT3x-style temperature and humidity
// sensor through the asynchronous bus engine, following the fixed sequence
// reserve, command write, measurement wait, readback, release.
package tmphm

import (
	"encoding/binary"
	"fmt"
)

// MeasureCmd is the high-repeatability, clock-stretching measurement command
// (datasheet table 8).
var MeasureCmd = [2]byte{0x2C, 0x06}

// FrameLen is the size of a measurement readback: two big-endian words, each
// followed by its CRC-8.
const FrameLen = 6

// Measurement is a decoded sensor reading.
type Measurement struct {
	// Temperature in degrees Celsius.
	Temperature float32
	// Humidity in percent relative humidity.
	Humidity float32
}

// Decode validates the CRCs of a raw measurement frame and converts it using
// the datasheet formulas: T = -45 + 175*raw/65535, RH = 100*raw/65535.
func Decode(frame []byte) (Measurement, error) {
	if len(frame) != FrameLen {
		return Measurement{}, fmt.Errorf("tmphm: frame must be %d bytes, got %d", FrameLen, len(frame))
	}
	if crc8(frame[0:2]) != frame[2] {
		return Measurement{}, fmt.Errorf("tmphm: temperature CRC mismatch")
	}
	if crc8(frame[3:5]) != frame[5] {
		return Measurement{}, fmt.Errorf("tmphm: humidity CRC mismatch")
	}
	rawT := binary.BigEndian.Uint16(frame[0:2])
	rawRH := binary.BigEndian.Uint16(frame[3:5])
	return Measurement{
		Temperature: -45.0 + 175.0*float32(rawT)/65535.0,
		Humidity:    100.0 * float32(rawRH) / 65535.0,
	}, nil
}

// Sensirion CRC-8: polynomial 0x31, init 0xFF, no final xor. Reference
// vector from the datasheet: 0xBEEF -> 0x92.
func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
