package sockcan

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/squadracorsepolito/acmesig/dbc"
)

// BCM flags of bcm_msg_head.
const (
	flagSetTimer         uint32 = 0x0001
	flagStartTimer       uint32 = 0x0002
	flagRxFilterID       uint32 = 0x0020
	flagRxAnnounceResume uint32 = 0x0100

	rxSetupFlags = flagRxFilterID | flagSetTimer | flagStartTimer | flagRxAnnounceResume
)

const (
	canEFFFlag = 0x80000000
	canEFFMask = 0x1fffffff
	canSFFMask = 0x000007ff

	// bcm_msg_head on 64 bit platforms, timevals are 16 bytes each
	bcmHeadSize = 56
	canFrameLen = 16
	bcmMsgSize  = bcmHeadSize + canFrameLen
)

var (
	ErrShortMessage = errors.New("bcm: short message")
	ErrFrameCount   = errors.New("bcm: unexpected frame count")
)

type timeval struct {
	sec  int64
	usec int64
}

func timevalFromMillis(ms uint64) timeval {
	return timeval{
		sec:  int64(ms / 1000),
		usec: int64(ms%1000) * 1000,
	}
}

type bcmHead struct {
	opcode  dbc.Opcode
	flags   uint32
	count   uint32
	ival1   timeval
	ival2   timeval
	canID   uint32
	nframes uint32
}

func (h *bcmHead) encode() []byte {
	buf := make([]byte, bcmHeadSize)
	ne := binary.NativeEndian

	ne.PutUint32(buf[0:], uint32(h.opcode))
	ne.PutUint32(buf[4:], h.flags)
	ne.PutUint32(buf[8:], h.count)
	// 4 bytes of padding before ival1
	ne.PutUint64(buf[16:], uint64(h.ival1.sec))
	ne.PutUint64(buf[24:], uint64(h.ival1.usec))
	ne.PutUint64(buf[32:], uint64(h.ival2.sec))
	ne.PutUint64(buf[40:], uint64(h.ival2.usec))
	ne.PutUint32(buf[48:], h.canID)
	ne.PutUint32(buf[52:], h.nframes)

	return buf
}

// encodeRxSetup builds the RX_SETUP command filtering canID.
// The watchdog arms the receive timeout, the rate throttles the changes.
// Both are in milliseconds, timers are only set when one of them is not 0.
func encodeRxSetup(canID uint32, rate, watchdog uint64) []byte {
	head := bcmHead{
		opcode: dbc.OpRxSetup,
		flags:  rxSetupFlags,
		canID:  canID,
	}

	if rate > 0 || watchdog > 0 {
		head.ival1 = timevalFromMillis(watchdog)
		head.ival2 = timevalFromMillis(rate)
	}

	return head.encode()
}

func encodeRxDelete(canID uint32) []byte {
	head := bcmHead{
		opcode: dbc.OpRxDelete,
		canID:  canID,
	}
	return head.encode()
}

// decodeMessage decodes a message read from the BCM socket.
// Timeout notifications carry no frame.
func decodeMessage(buf []byte) (dbc.Frame, error) {
	if len(buf) < bcmHeadSize {
		return dbc.Frame{}, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(buf))
	}

	ne := binary.NativeEndian

	frame := dbc.Frame{
		Opcode: dbc.Opcode(ne.Uint32(buf[0:])),
		CANID:  canIDOf(ne.Uint32(buf[48:])),
	}

	nframes := ne.Uint32(buf[52:])
	if nframes == 0 {
		return frame, nil
	}

	if nframes != 1 {
		return frame, fmt.Errorf("%w: %d", ErrFrameCount, nframes)
	}

	if len(buf) < bcmMsgSize {
		return frame, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(buf))
	}

	raw := buf[bcmHeadSize:]
	frame.Len = min(raw[4], 8)
	frame.Data = make([]byte, frame.Len)
	copy(frame.Data, raw[8:8+int(frame.Len)])

	return frame, nil
}

func canIDOf(raw uint32) uint32 {
	if raw&canEFFFlag != 0 {
		return raw & canEFFMask
	}
	return raw & canSFFMask
}
