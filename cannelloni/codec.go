package cannelloni

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	headerSize = 5

	canFDFlag = 0x80
)

var ErrShortBuffer = errors.New("cannelloni: not enough data")

// Frame is a CAN frame carried by a [Packet].
type Frame struct {
	CANID   uint32
	DataLen uint8
	FDFlags uint8
	Data    []byte
}

func NewFrame(canID uint32, data []byte) *Frame {
	return &Frame{
		CANID:   canID,
		DataLen: uint8(len(data)),
		Data:    data,
	}
}

// IsFD reports whether the frame is a CAN FD frame.
func (f *Frame) IsFD() bool {
	return f.FDFlags != 0
}

// Packet is a cannelloni UDP datagram.
type Packet struct {
	Version  uint8
	OpCode   uint8
	Sequence uint8
	Count    uint16
	Frames   []*Frame
}

func NewPacket(sequence uint8) *Packet {
	return &Packet{
		Version:  1,
		Sequence: sequence,
	}
}

func (p *Packet) AddFrame(frame *Frame) {
	p.Frames = append(p.Frames, frame)
	p.Count++
}

// DecodePacket decodes a datagram.
func DecodePacket(buf []byte) (*Packet, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: header of %d bytes", ErrShortBuffer, len(buf))
	}

	p := &Packet{
		Version:  buf[0],
		OpCode:   buf[1],
		Sequence: buf[2],
		Count:    binary.BigEndian.Uint16(buf[3:5]),
	}

	p.Frames = make([]*Frame, p.Count)
	pos := headerSize
	for i := range p.Count {
		frame, n, err := decodeFrame(buf[pos:])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}

		p.Frames[i] = frame
		pos += n
	}

	return p, nil
}

func decodeFrame(buf []byte) (*Frame, int, error) {
	if len(buf) < 5 {
		return nil, 0, ErrShortBuffer
	}

	f := &Frame{
		CANID: binary.BigEndian.Uint32(buf[0:4]),
	}

	n := 5
	dataLen := buf[4]
	if dataLen&canFDFlag != 0 {
		if len(buf) < 6 {
			return nil, 0, ErrShortBuffer
		}

		f.DataLen = dataLen &^ canFDFlag
		f.FDFlags = buf[5]
		n++
	} else {
		f.DataLen = dataLen
	}

	if len(buf) < n+int(f.DataLen) {
		return nil, 0, ErrShortBuffer
	}

	f.Data = make([]byte, f.DataLen)
	n += copy(f.Data, buf[n:n+int(f.DataLen)])

	return f, n, nil
}

// Encode encodes the packet into a datagram.
func (p *Packet) Encode() []byte {
	buf := make([]byte, headerSize)

	buf[0] = p.Version
	buf[1] = p.OpCode
	buf[2] = p.Sequence
	binary.BigEndian.PutUint16(buf[3:5], p.Count)

	for _, frame := range p.Frames {
		buf = frame.appendTo(buf)
	}

	return buf
}

func (f *Frame) appendTo(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, f.CANID)

	if f.IsFD() {
		buf = append(buf, f.DataLen|canFDFlag, f.FDFlags)
	} else {
		buf = append(buf, f.DataLen)
	}

	return append(buf, f.Data[:f.DataLen]...)
}
