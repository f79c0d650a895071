// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"sync"
)

// cryptTable returns the encryption/hash lookup table, computing it on the
// first call. The table is read-only afterwards.
var cryptTable = sync.OnceValue(func() *[0x500]uint32 {
	var table [0x500]uint32
	seed := uint32(0x00100001)

	for index1 := 0; index1 < 0x100; index1++ {
		index2 := index1
		for i := 0; i < 5; i++ {
			seed = (seed*125 + 3) % 0x2AAAAB
			temp1 := (seed & 0xFFFF) << 0x10

			seed = (seed*125 + 3) % 0x2AAAAB
			temp2 := seed & 0xFFFF

			table[index2] = temp1 | temp2
			index2 += 0x100
		}
	}
	return &table
})

// decryptBlock decrypts a block of data in place
func decryptBlock(data []uint32, key uint32) {
	table := cryptTable()
	seed := uint32(0xEEEEEEEE)

	for i := range data {
		seed += table[0x400+(key&0xFF)]
		plain := data[i] ^ (key + seed)
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
		data[i] = plain
	}
}

// decryptBytes decrypts data in place. Only whole little-endian words are
// encrypted in MPQ sectors; up to three trailing bytes are left as they are.
func decryptBytes(data []byte, key uint32) {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}

	decryptBlock(words, key)

	for i, word := range words {
		binary.LittleEndian.PutUint32(data[i*4:], word)
	}
}
