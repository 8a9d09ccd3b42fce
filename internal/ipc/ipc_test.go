package ipc

import (
	"bytes"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := SendBody{IfIndex: 7, Frame: []byte("hello")}
	if err := WriteFrame(&buf, Frame{Tag: TagSend, Body: body.Marshal()}); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if f.Tag != TagSend {
		t.Fatalf("tag = %v, want Send", f.Tag)
	}
	got, err := UnmarshalSend(f.Body)
	if err != nil {
		t.Fatal(err)
	}
	if got.IfIndex != 7 || string(got.Frame) != "hello" {
		t.Fatalf("unmarshal mismatch: %+v", got)
	}
}

func TestPartialReadResumes(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, Frame{Tag: TagShutdown, Body: nil})
	full := buf.Bytes()

	pr, pw := io.Pipe()
	go func() {
		pw.Write(full[:2])
		pw.Write(full[2:])
		pw.Close()
	}()
	f, err := ReadFrame(pr)
	if err != nil {
		t.Fatal(err)
	}
	if f.Tag != TagShutdown {
		t.Fatalf("tag = %v, want Shutdown", f.Tag)
	}
}

func TestSetDescrRoundTrip(t *testing.T) {
	b := SetDescrBody{Name: "eth0", Descr: "uplink to core"}
	got, err := UnmarshalSetDescr(b.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}

func TestRecvBodyRoundTrip(t *testing.T) {
	b := RecvBody{IfIndex: 3, Proto: 1, Frame: []byte{1, 2, 3}}
	got, err := UnmarshalRecv(b.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got.IfIndex != b.IfIndex || got.Proto != b.Proto || !bytes.Equal(got.Frame, b.Frame) {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}
