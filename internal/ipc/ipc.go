// Package ipc implements the length-prefixed, tagged binary wire format
// the parent and child processes exchange over the single socketpair
// that connects them; commands from the child and Recv messages from the
// parent share that one connection. The frame layout is little-endian
// `{u16 tag; u16 len; u8 body[len]}`. Partial reads are resumed without
// losing message boundaries, per the concurrency model's IPC framing
// guarantee.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/krisarmstrong/discoveryd/internal/errs"
)

// Tag identifies the kind of IpcFrame.
type Tag uint16

const (
	TagOpenTx   Tag = 1
	TagSend     Tag = 2
	TagRecv     Tag = 3
	TagSetDescr Tag = 4
	TagShutdown Tag = 5
	TagPeer     Tag = 6
)

func (t Tag) String() string {
	switch t {
	case TagOpenTx:
		return "OpenTx"
	case TagSend:
		return "Send"
	case TagRecv:
		return "Recv"
	case TagSetDescr:
		return "SetDescr"
	case TagShutdown:
		return "Shutdown"
	case TagPeer:
		return "Peer"
	default:
		return "Unknown"
	}
}

// maxBodyLen bounds a single frame's body to the largest value the u16
// length field can carry; comfortably above one Ethernet MTU frame plus
// framing overhead.
const maxBodyLen = 1<<16 - 1

// Frame is one IpcFrame: a tag plus an opaque body whose shape depends on
// the tag (see the per-tag Marshal/Unmarshal helpers below).
type Frame struct {
	Tag  Tag
	Body []byte
}

// WriteFrame writes one length-prefixed frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Body) > maxBodyLen {
		return errs.New(errs.PrivsepProtocol, fmt.Sprintf("frame body too large: %d", len(f.Body)))
	}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint16(header[0:2], uint16(f.Tag))
	binary.LittleEndian.PutUint16(header[2:4], uint16(len(f.Body)))
	if _, err := w.Write(header); err != nil {
		return errs.Wrap(errs.IoTransient, "write ipc header", err)
	}
	if len(f.Body) > 0 {
		if _, err := w.Write(f.Body); err != nil {
			return errs.Wrap(errs.IoTransient, "write ipc body", err)
		}
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r, blocking across
// partial reads as needed via io.ReadFull so message boundaries are never
// lost.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return Frame{}, err
		}
		return Frame{}, errs.Wrap(errs.IoTransient, "read ipc header", err)
	}
	tag := Tag(binary.LittleEndian.Uint16(header[0:2]))
	length := binary.LittleEndian.Uint16(header[2:4])
	if int(length) > maxBodyLen {
		return Frame{}, errs.New(errs.PrivsepProtocol, fmt.Sprintf("frame claims oversized body: %d", length))
	}
	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Frame{}, errs.Wrap(errs.IoTransient, "read ipc body", err)
		}
	}
	return Frame{Tag: tag, Body: body}, nil
}

// OpenTxBody is the body of an OpenTx command: bind a raw socket for
// transmission on the given interface.
type OpenTxBody struct {
	IfIndex uint32
}

func (b OpenTxBody) Marshal() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, b.IfIndex)
	return out
}

func UnmarshalOpenTx(body []byte) (OpenTxBody, error) {
	if len(body) < 4 {
		return OpenTxBody{}, errs.New(errs.PrivsepProtocol, "OpenTx body too short")
	}
	return OpenTxBody{IfIndex: binary.LittleEndian.Uint32(body)}, nil
}

// SendBody is the body of a Send command: { u32 ifindex, bytes frame }.
type SendBody struct {
	IfIndex uint32
	Frame   []byte
}

func (b SendBody) Marshal() []byte {
	out := make([]byte, 4+len(b.Frame))
	binary.LittleEndian.PutUint32(out[0:4], b.IfIndex)
	copy(out[4:], b.Frame)
	return out
}

func UnmarshalSend(body []byte) (SendBody, error) {
	if len(body) < 4 {
		return SendBody{}, errs.New(errs.PrivsepProtocol, "Send body too short")
	}
	return SendBody{IfIndex: binary.LittleEndian.Uint32(body[0:4]), Frame: body[4:]}, nil
}

// RecvBody is the body of a Recv message: { u32 ifindex, u8 proto, bytes frame }.
type RecvBody struct {
	IfIndex uint32
	Proto   uint8
	Frame   []byte
}

func (b RecvBody) Marshal() []byte {
	out := make([]byte, 5+len(b.Frame))
	binary.LittleEndian.PutUint32(out[0:4], b.IfIndex)
	out[4] = b.Proto
	copy(out[5:], b.Frame)
	return out
}

func UnmarshalRecv(body []byte) (RecvBody, error) {
	if len(body) < 5 {
		return RecvBody{}, errs.New(errs.PrivsepProtocol, "Recv body too short")
	}
	return RecvBody{
		IfIndex: binary.LittleEndian.Uint32(body[0:4]),
		Proto:   body[4],
		Frame:   body[5:],
	}, nil
}

// SetDescrBody is the body of a SetDescr command: { u8 name_len, name, u16 descr_len, descr }.
type SetDescrBody struct {
	Name  string
	Descr string
}

func (b SetDescrBody) Marshal() []byte {
	name := []byte(b.Name)
	descr := []byte(b.Descr)
	out := make([]byte, 1+len(name)+2+len(descr))
	out[0] = byte(len(name))
	copy(out[1:], name)
	off := 1 + len(name)
	binary.LittleEndian.PutUint16(out[off:off+2], uint16(len(descr)))
	copy(out[off+2:], descr)
	return out
}

func UnmarshalSetDescr(body []byte) (SetDescrBody, error) {
	if len(body) < 1 {
		return SetDescrBody{}, errs.New(errs.PrivsepProtocol, "SetDescr body too short")
	}
	nameLen := int(body[0])
	if len(body) < 1+nameLen+2 {
		return SetDescrBody{}, errs.New(errs.PrivsepProtocol, "SetDescr body truncated at name")
	}
	name := string(body[1 : 1+nameLen])
	off := 1 + nameLen
	descrLen := int(binary.LittleEndian.Uint16(body[off : off+2]))
	if len(body) < off+2+descrLen {
		return SetDescrBody{}, errs.New(errs.PrivsepProtocol, "SetDescr body truncated at descr")
	}
	descr := string(body[off+2 : off+2+descrLen])
	return SetDescrBody{Name: name, Descr: descr}, nil
}
