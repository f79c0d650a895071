// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

// bitReader hands out bits from a byte slice, least significant bit first
// within each byte. It is used by exactly one decode call and is not safe
// for concurrent use.
type bitReader struct {
	data     []byte
	pos      int    // next byte to load into bitBuf
	bitBuf   uint32 // unread bits, next bit in position 0
	bitCount uint   // number of valid bits in bitBuf
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

// readBit returns the next bit, or -1 once the input is exhausted.
func (br *bitReader) readBit() int {
	if br.bitCount == 0 {
		if br.pos >= len(br.data) {
			return -1
		}
		br.bitBuf = uint32(br.data[br.pos])
		br.pos++
		br.bitCount = 8
	}

	bit := int(br.bitBuf & 1)
	br.bitBuf >>= 1
	br.bitCount--
	return bit
}

// maxGetBits is the widest read getBits supports: up to 7 buffered bits plus
// the new bytes must fit in bitBuf.
const maxGetBits = 24

// getBits reads n bits (n <= maxGetBits). The first bit read becomes bit 0 of
// the result. If n is too wide or fewer than n bits are left, nothing is
// consumed and ok is false.
func (br *bitReader) getBits(n uint) (value uint32, ok bool) {
	if n == 0 {
		return 0, true
	}
	if n > maxGetBits || br.bitsLeft() < int(n) {
		return 0, false
	}

	for br.bitCount < n {
		br.bitBuf |= uint32(br.data[br.pos]) << br.bitCount
		br.pos++
		br.bitCount += 8
	}

	value = br.bitBuf & (1<<n - 1)
	br.bitBuf >>= n
	br.bitCount -= n
	return value, true
}

// bitsLeft returns the number of bits that can still be read.
func (br *bitReader) bitsLeft() int {
	return int(br.bitCount) + 8*(len(br.data)-br.pos)
}
