// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
)

// Block table flags that affect how a member's bytes are decoded.
const (
	FileImplode    = 0x00000100 // Imploded (PKWARE compression)
	FileCompress   = 0x00000200 // Compressed (multi-algorithm)
	FileEncrypted  = 0x00010000 // Encrypted
	FileSingleUnit = 0x01000000 // Single unit (not split into sectors)
	FileSectorCRC  = 0x04000000 // Sector CRC values after data

	// DefaultSectorSize is 512 << 3, the shift used by the original games.
	DefaultSectorSize = 4096
)

// Member describes how one archive member is stored. Key is the member's
// decryption key and is only used when Flags has FileEncrypted.
type Member struct {
	FileSize   uint32
	SectorSize uint32
	Flags      uint32
	Key        uint32
}

func (m Member) compressed() bool {
	return m.Flags&(FileImplode|FileCompress) != 0
}

func (m Member) numSectors() int {
	return int((uint64(m.FileSize) + uint64(m.SectorSize) - 1) / uint64(m.SectorSize))
}

// sectorSize returns the decompressed size of sector i; only the last one
// may be shorter than SectorSize.
func (m Member) sectorSize(i int) int {
	if i == m.numSectors()-1 {
		return int(m.FileSize) - i*int(m.SectorSize)
	}
	return int(m.SectorSize)
}

// DecodeMember turns the stored bytes of a member into its contents. stored
// is never modified.
func DecodeMember(stored []byte, m Member) ([]byte, error) {
	if err := checkExpectedSize(int(m.FileSize)); err != nil {
		return nil, err
	}
	if m.FileSize == 0 {
		return []byte{}, nil
	}

	data := stored
	if m.Flags&FileEncrypted != 0 {
		// Decryption happens in place.
		data = bytes.Clone(stored)
	}

	if m.Flags&FileSingleUnit != 0 {
		return decodeSingleUnit(data, m)
	}
	if m.SectorSize == 0 {
		return nil, ErrInvalidSector.WithMessage("sector size is zero")
	}
	if !m.compressed() {
		return decodePlainSectors(data, m)
	}
	return decodeSectors(data, m)
}

func decodeSingleUnit(data []byte, m Member) ([]byte, error) {
	if m.Flags&FileEncrypted != 0 {
		decryptBytes(data, m.Key)
	}

	size := int(m.FileSize)
	if m.compressed() && len(data) < size {
		result, err := decodeUnit(data, size, m.Flags)
		if err != nil {
			return nil, fmt.Errorf("decompress file: %w", err)
		}
		return result, nil
	}

	if len(data) < size {
		return nil, ErrSizeMismatch.WithMessage(
			fmt.Sprintf("stored %d bytes, want %d", len(data), size))
	}
	return bytes.Clone(data[:size]), nil
}

// decodePlainSectors handles members that are split into sectors but not
// compressed. There is no offset table; sectors follow each other directly.
func decodePlainSectors(data []byte, m Member) ([]byte, error) {
	size := int(m.FileSize)
	if len(data) < size {
		return nil, ErrSizeMismatch.WithMessage(
			fmt.Sprintf("stored %d bytes, want %d", len(data), size))
	}

	result := bytes.Clone(data[:size])
	if m.Flags&FileEncrypted != 0 {
		for i := 0; i < m.numSectors(); i++ {
			start := i * int(m.SectorSize)
			decryptBytes(result[start:start+m.sectorSize(i)], m.Key+uint32(i))
		}
	}
	return result, nil
}

// decodeSectors handles compressed sector-based members.
func decodeSectors(data []byte, m Member) ([]byte, error) {
	numSectors := m.numSectors()
	offsetTable, err := readOffsetTable(data, m)
	if err != nil {
		return nil, err
	}

	var checksums []uint32
	if m.Flags&FileSectorCRC != 0 {
		checksums, err = readSectorChecksums(data, offsetTable, numSectors)
		if err != nil {
			return nil, err
		}
	}

	output := make([]byte, m.FileSize)
	w := bytewriter.New(output)

	// Process each sector
	for i := 0; i < numSectors; i++ {
		sectorData := data[offsetTable[i]:offsetTable[i+1]]

		if m.Flags&FileEncrypted != 0 {
			decryptBytes(sectorData, m.Key+uint32(i))
		}
		if checksums != nil {
			if err := verifySectorChecksum(i, sectorData, checksums[i]); err != nil {
				return nil, err
			}
		}

		expectedSize := m.sectorSize(i)
		decompressed := sectorData
		// A sector that did not shrink is stored as is.
		if len(sectorData) < expectedSize {
			decompressed, err = decodeUnit(sectorData, expectedSize, m.Flags)
			if err != nil {
				return nil, fmt.Errorf("decompress sector %d: %w", i, err)
			}
		} else if len(sectorData) > expectedSize {
			return nil, ErrInvalidSector.WithMessage(
				fmt.Sprintf("sector %d stores %d bytes, want at most %d", i, len(sectorData), expectedSize))
		}

		if _, err := w.Write(decompressed); err != nil {
			return nil, ErrInvalidSector.Wrap(err)
		}
	}

	return output, nil
}

// decodeUnit decompresses one sector or single-unit file. Imploded members
// have no compression mask byte.
func decodeUnit(data []byte, expectedSize int, flags uint32) ([]byte, error) {
	if flags&FileImplode != 0 {
		return DecompressPKWare(data, expectedSize)
	}
	return Decompress(data, expectedSize)
}

// readOffsetTable reads the sector offset table at the start of data. It has
// one entry per sector plus the end of the last sector, and one more when
// sector checksums are present. Offsets are relative to the start of data.
func readOffsetTable(data []byte, m Member) ([]uint32, error) {
	entries := m.numSectors() + 1
	if m.Flags&FileSectorCRC != 0 {
		entries++
	}

	tableSize := entries * 4
	if len(data) < tableSize {
		return nil, ErrInvalidSector.WithMessage("data too small for sector offset table")
	}

	raw := data[:tableSize]
	if m.Flags&FileEncrypted != 0 {
		decryptBytes(raw, m.Key-1)
	}

	offsetTable := make([]uint32, entries)
	for i := range offsetTable {
		offsetTable[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	if offsetTable[0] != uint32(tableSize) {
		return nil, ErrInvalidSector.WithMessage(
			fmt.Sprintf("first sector starts at %d, want %d", offsetTable[0], tableSize))
	}
	for i := 1; i < entries; i++ {
		if offsetTable[i] < offsetTable[i-1] || offsetTable[i] > uint32(len(data)) {
			return nil, ErrInvalidSector.WithMessage(
				fmt.Sprintf("invalid sector offsets: %d-%d", offsetTable[i-1], offsetTable[i]))
		}
	}
	return offsetTable, nil
}
