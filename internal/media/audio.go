package media

import "encoding/binary"

// DecodeULaw expands 8-bit μ-law samples (G.711, as carried by Twilio media
// streams at 8kHz mono) to 16-bit little-endian linear PCM.
func DecodeULaw(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, u := range in {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(ulawToLinear(u)))
	}
	return out
}

func ulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + 0x84
	value <<= uint(exp)
	value -= 0x84
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}
