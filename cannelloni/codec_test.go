package cannelloni

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DecodePacket(t *testing.T) {
	assert := assert.New(t)

	packet, err := DecodePacket(getEncodedPacket(3))
	require.NoError(t, err)

	assert.Equal(uint8(1), packet.Version)
	assert.Equal(uint8(1), packet.Sequence)
	assert.Equal(uint16(3), packet.Count)
	require.Len(t, packet.Frames, 3)

	for idx, frame := range packet.Frames {
		assert.Equal(uint32(idx), frame.CANID)
		assert.Equal(uint8(8), frame.DataLen)
		assert.False(frame.IsFD())
		assert.Equal([]byte{0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8}, frame.Data)
	}
}

func Test_Packet_Encode(t *testing.T) {
	assert := assert.New(t)

	packet := NewPacket(42)
	packet.AddFrame(NewFrame(0x266, []byte{0xe7, 0x07}))

	fd := NewFrame(0x118, make([]byte, 12))
	fd.FDFlags = 0x04
	packet.AddFrame(fd)

	buf := packet.Encode()
	assert.Equal([]byte{1, 0, 42, 0, 2}, buf[:5])
	assert.Equal([]byte{0, 0, 0x02, 0x66, 2, 0xe7, 0x07}, buf[5:12])
	assert.Equal([]byte{0, 0, 0x01, 0x18, 12 | 0x80, 0x04}, buf[12:18])

	decoded, err := DecodePacket(buf)
	require.NoError(t, err)
	assert.Equal(packet, decoded)
}

func Test_DecodePacket_ShortBuffer(t *testing.T) {
	assert := assert.New(t)

	_, err := DecodePacket([]byte{1, 0, 0})
	assert.ErrorIs(err, ErrShortBuffer)

	buf := getEncodedPacket(2)
	_, err = DecodePacket(buf[:len(buf)-3])
	assert.ErrorIs(err, ErrShortBuffer)

	// fd length flag without the flags byte
	_, err = DecodePacket([]byte{1, 0, 0, 0, 1, 0, 0, 0, 1, 0x88})
	assert.ErrorIs(err, ErrShortBuffer)
}

func Benchmark_DecodePacket(b *testing.B) {
	b.ReportAllocs()

	buf := getEncodedPacket(113)

	b.ResetTimer()
	for b.Loop() {
		if _, err := DecodePacket(buf); err != nil {
			b.Fatal(err)
		}
	}
}

func getEncodedPacket(msgNum int) []byte {
	buf := make([]byte, 5)

	buf[0] = 1
	buf[1] = 0
	buf[2] = 1
	binary.BigEndian.PutUint16(buf[3:5], uint16(msgNum))

	for canID := range msgNum {
		msgBuf := make([]byte, 13)

		binary.BigEndian.PutUint32(msgBuf[0:4], uint32(canID))
		msgBuf[4] = 8

		data := []byte{0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8}
		copy(msgBuf[5:], data)

		buf = append(buf, msgBuf...)
	}

	return buf
}
