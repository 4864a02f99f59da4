package media

import (
	"encoding/binary"
	"testing"
)

func TestULawToLinear_KnownValues(t *testing.T) {
	cases := []struct {
		in   byte
		want int16
	}{
		{0xFF, 0},      // positive silence
		{0x7F, 0},      // negative silence
		{0x00, -32124}, // most negative
		{0x80, 32124},  // most positive
	}
	for _, tc := range cases {
		if got := ulawToLinear(tc.in); got != tc.want {
			t.Fatalf("ulawToLinear(0x%02X) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestULawToLinear_SignSymmetry(t *testing.T) {
	// The positive and negative halves of the codec mirror each other.
	for u := 0; u < 128; u++ {
		pos := ulawToLinear(byte(u) | 0x80)
		neg := ulawToLinear(byte(u))
		if pos != -neg {
			t.Fatalf("codes 0x%02X/0x%02X not symmetric: %d vs %d", u|0x80, u, pos, neg)
		}
	}
}

func TestDecodeULaw(t *testing.T) {
	out := DecodeULaw([]byte{0xFF, 0x00})
	if len(out) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(out))
	}
	if got := int16(binary.LittleEndian.Uint16(out[0:2])); got != 0 {
		t.Fatalf("first sample: got %d, want 0", got)
	}
	if got := int16(binary.LittleEndian.Uint16(out[2:4])); got != -32124 {
		t.Fatalf("second sample: got %d, want -32124", got)
	}
}

func TestDecodeULaw_Empty(t *testing.T) {
	if out := DecodeULaw(nil); len(out) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(out))
	}
}
