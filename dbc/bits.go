package dbc

import "slices"

// Bit numbering is LSB first: bit n lives in byte n/8 at position n%8.
// Big endian signals are read from the payload with its bytes reversed,
// so their start bit is counted on the reversed buffer.

func loadBits(data []byte, start, length uint16) uint64 {
	var raw uint64
	for k := range length {
		pos := start + k
		idx := int(pos / 8)
		if idx >= len(data) {
			break
		}

		if data[idx]>>(pos%8)&1 == 1 {
			raw |= 1 << k
		}
	}
	return raw
}

func storeBits(data []byte, start, length uint16, raw uint64) {
	for k := range length {
		pos := start + k
		idx := int(pos / 8)
		mask := byte(1) << (pos % 8)

		if raw>>k&1 == 1 {
			data[idx] |= mask
		} else {
			data[idx] &^= mask
		}
	}
}

func extract(data []byte, start, length uint16, order ByteOrder) uint64 {
	if order == BigEndian {
		rev := slices.Clone(data)
		slices.Reverse(rev)
		return loadBits(rev, start, length)
	}
	return loadBits(data, start, length)
}

func insert(data []byte, start, length uint16, order ByteOrder, raw uint64) {
	if order == BigEndian {
		slices.Reverse(data)
		storeBits(data, start, length, raw)
		slices.Reverse(data)
		return
	}
	storeBits(data, start, length, raw)
}

func signExtend(raw uint64, length uint16) int64 {
	if length == 0 || length >= 64 {
		return int64(raw)
	}
	shift := 64 - length
	return int64(raw<<shift) >> shift
}

func rawMask(length uint16) uint64 {
	if length >= 64 {
		return ^uint64(0)
	}
	return 1<<length - 1
}
