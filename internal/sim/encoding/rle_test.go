package encoding

import "testing"

func TestRuns_RoundTrip(t *testing.T) {
	in := make([]uint16, 4096)
	for i := 0; i < 256; i++ {
		in[i] = 2
	}
	in[300] = 7
	in[4095] = 9

	raw := EncodeRuns(in)
	if len(raw) > 32 {
		t.Fatalf("expected a compact encoding, got %d bytes", len(raw))
	}
	out, err := DecodeRuns(raw, len(in))
	if err != nil {
		t.Fatalf("DecodeRuns: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestDecodeRuns_RejectsWrongLength(t *testing.T) {
	raw := EncodeRuns([]uint16{1, 1, 1})
	if _, err := DecodeRuns(raw, 4); err == nil {
		t.Fatalf("expected short data to fail")
	}
	if _, err := DecodeRuns(raw, 2); err == nil {
		t.Fatalf("expected overflowing run to fail")
	}
	if _, err := DecodeRuns([]byte{0x80}, 1); err == nil {
		t.Fatalf("expected truncated varint to fail")
	}
}
