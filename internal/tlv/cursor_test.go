package tlv

import (
	"bytes"
	"testing"

	"github.com/krisarmstrong/discoveryd/internal/errs"
)

func TestWriterPrimitivesRoundTrip(t *testing.T) {
	buf := make([]byte, 32)
	w := NewWriter(buf)
	if err := w.PutU8(0xAB); err != nil {
		t.Fatal(err)
	}
	if err := w.PutU16(0x1234); err != nil {
		t.Fatal(err)
	}
	if err := w.PutU32(0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := w.PutBytes([]byte("hi")); err != nil {
		t.Fatal(err)
	}

	r := NewReader(w.Bytes())
	if v, err := r.GetU8(); err != nil || v != 0xAB {
		t.Fatalf("GetU8 = %x, %v", v, err)
	}
	if v, err := r.GetU16(); err != nil || v != 0x1234 {
		t.Fatalf("GetU16 = %x, %v", v, err)
	}
	if v, err := r.GetU32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("GetU32 = %x, %v", v, err)
	}
	if b, err := r.GetBytes(2); err != nil || string(b) != "hi" {
		t.Fatalf("GetBytes = %q, %v", b, err)
	}
}

func TestWriterOverflow(t *testing.T) {
	buf := make([]byte, 1)
	w := NewWriter(buf)
	err := w.PutU16(1)
	if !errs.Is(err, errs.FrameOverflow) {
		t.Fatalf("expected FrameOverflow, got %v", err)
	}
}

func TestReaderUnderflow(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.GetU16()
	if !errs.Is(err, errs.FrameUnderflow) {
		t.Fatalf("expected FrameUnderflow, got %v", err)
	}
}

func TestPadTo(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	w.PutBytes([]byte{1, 2, 3})
	if err := w.PadTo(10); err != nil {
		t.Fatal(err)
	}
	if w.Pos() != 10 {
		t.Fatalf("pos = %d, want 10", w.Pos())
	}
	if !bytes.Equal(w.Bytes()[3:10], make([]byte, 7)) {
		t.Fatalf("padding not zero-filled: %v", w.Bytes()[3:10])
	}
}

func TestLLDPTLVPackingBitExact(t *testing.T) {
	buf := make([]byte, 32)
	w := NewWriter(buf)
	value := []byte{0x04, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	if err := w.PutLLDPTLV(1, value); err != nil {
		t.Fatal(err)
	}
	got := w.Bytes()
	// type 1, length 7 -> header bits: ttttttt lllllllll over 2 bytes.
	want := []byte{0x02, 0x07}
	if !bytes.Equal(got[:2], want) {
		t.Fatalf("header = %x, want %x", got[:2], want)
	}

	r := NewReader(got)
	hdr, err := r.GetLLDPTLVHeader()
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Type != 1 || hdr.Length != 7 {
		t.Fatalf("hdr = %+v", hdr)
	}
	gotValue, err := r.GetBytes(hdr.Length)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotValue, value) {
		t.Fatalf("value = %x, want %x", gotValue, value)
	}
}

func TestVendorTLV(t *testing.T) {
	buf := make([]byte, 32)
	w := NewWriter(buf)
	oui := [3]byte{0x00, 0x12, 0x0f}
	if err := w.PutVendorTLV(oui, 5, []byte{0x01}); err != nil {
		t.Fatal(err)
	}
	r := NewReader(w.Bytes())
	hdr, err := r.GetLLDPTLVHeader()
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Type != 127 {
		t.Fatalf("vendor TLV type = %d, want 127", hdr.Type)
	}
	body, err := r.GetBytes(hdr.Length)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body[:3], oui[:]) || body[3] != 5 || body[4] != 0x01 {
		t.Fatalf("vendor body = %x", body)
	}
}

func TestLongTLVRejected(t *testing.T) {
	buf := make([]byte, 1024)
	w := NewWriter(buf)
	big := make([]byte, 0x200)
	if err := w.PutLLDPTLV(1, big); !errs.Is(err, errs.FrameOverflow) {
		t.Fatalf("expected FrameOverflow for over-length TLV, got %v", err)
	}
}
