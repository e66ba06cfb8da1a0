package sim

import "encoding/binary"

// DefaultSHT3xAddr is the factory-default address of the modeled sensor.
const DefaultSHT3xAddr = 0x44

// SHT3x is a behavioral model of a Sensirion SHT3x-style temperature and
// humidity slave. It acknowledges its own address, swallows command writes
// and serves a six byte measurement frame (raw temperature word, CRC, raw
// humidity word, CRC) computed from the configured reading.
type SHT3x struct {
	addr byte

	temperature float32
	humidity    float32

	cmd   []byte
	frame [6]byte
	pos   int
	fresh bool
}

func NewSHT3x(addr byte) *SHT3x {
	s := &SHT3x{addr: addr}
	s.SetReading(23.5, 45.0)
	return s
}

// SetReading fixes the measurement the slave serves, in degrees Celsius and
// percent relative humidity.
func (s *SHT3x) SetReading(temperature, humidity float32) {
	s.temperature = temperature
	s.humidity = humidity
	// Inverse of the datasheet conversion formulas.
	rawT := uint16((temperature + 45.0) / 175.0 * 65535.0)
	rawRH := uint16(humidity / 100.0 * 65535.0)
	binary.BigEndian.PutUint16(s.frame[0:2], rawT)
	s.frame[2] = crc8(s.frame[0:2])
	binary.BigEndian.PutUint16(s.frame[3:5], rawRH)
	s.frame[5] = crc8(s.frame[3:5])
}

// LastCommand returns the bytes of the most recent command write.
func (s *SHT3x) LastCommand() []byte {
	return s.cmd
}

func (s *SHT3x) Ack(addr byte, read bool) bool {
	if addr != s.addr {
		return false
	}
	if read {
		// Reading back without a prior measurement command gets nacked, as
		// the real part does.
		if !s.fresh {
			return false
		}
		s.pos = 0
	} else {
		s.cmd = s.cmd[:0]
	}
	return true
}

func (s *SHT3x) WriteByte(b byte) bool {
	s.cmd = append(s.cmd, b)
	s.fresh = len(s.cmd) == 2
	return true
}

func (s *SHT3x) ReadByte() byte {
	if s.pos >= len(s.frame) {
		return 0xFF
	}
	b := s.frame[s.pos]
	s.pos++
	return b
}

func (s *SHT3x) Stop() {}

// Sensirion CRC-8: polynomial 0x31, init 0xFF, no final xor.
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
