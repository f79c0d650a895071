// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"fmt"
)

// sectorChecksum computes the Adler-32 variant used for MPQ sector CRCs.
// Archive tools seed it with 0 rather than the usual 1.
func sectorChecksum(data []byte) uint32 {
	const mod = 65521
	var a, b uint32
	for _, v := range data {
		a = (a + uint32(v)) % mod
		b = (b + a) % mod
	}
	return (b << 16) | a
}

// readSectorChecksums reads the checksum block stored between the last two
// entries of the offset table. The block is itself compressed when that
// made it smaller.
func readSectorChecksums(data []byte, offsetTable []uint32, numSectors int) ([]uint32, error) {
	block := data[offsetTable[numSectors]:offsetTable[numSectors+1]]
	want := numSectors * 4

	switch {
	case len(block) == want:
	case len(block) > 0 && len(block) < want:
		decompressed, err := Decompress(block, want)
		if err != nil {
			return nil, fmt.Errorf("decompress sector checksums: %w", err)
		}
		block = decompressed
	default:
		return nil, ErrInvalidSector.WithMessage(
			fmt.Sprintf("sector checksum block is %d bytes, want %d", len(block), want))
	}

	checksums := make([]uint32, numSectors)
	for i := range checksums {
		checksums[i] = binary.LittleEndian.Uint32(block[i*4:])
	}
	return checksums, nil
}

// verifySectorChecksum compares the checksum of a stored sector with the
// recorded one. A recorded value of 0 means the sector has none.
func verifySectorChecksum(index int, sector []byte, want uint32) error {
	if want == 0 {
		return nil
	}
	if got := sectorChecksum(sector); got != want {
		return ErrInvalidSector.WithMessage(
			fmt.Sprintf("sector %d checksum 0x%08X, want 0x%08X", index, got, want))
	}
	return nil
}
