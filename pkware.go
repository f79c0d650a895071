// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"errors"
	"fmt"
	"sync"
)

// PKWARE Data Compression Library ("implode") stream format:
//
//   - byte 0: literal mode, 0 for raw 8-bit literals, 1 for Huffman coded
//   - byte 1: dictionary size as log2(size) - 6, so 4, 5 or 6
//   - then tokens, each preceded by a flag bit: 0 for a literal, 1 for a
//     length/distance pair. A length of 519 marks the end of the stream.
//
// All codes are stored bit-inverted relative to canonical order, and extra
// bits are plain little-endian.
const (
	pkwareBinary = 0
	pkwareASCII  = 1

	pkwareMinDictBits = 4
	pkwareMaxDictBits = 6

	pkwareMaxCodeLength = 13
	pkwareEndOfStream   = 519
)

// Code lengths in compact form: each byte holds a repeat count minus one in
// the high nibble and a code length in the low nibble.
var (
	pkwareLiteralLengths = []byte{
		11, 124, 8, 7, 28, 7, 188, 13, 76, 4, 10, 8, 12, 10, 12, 10, 8, 23, 8,
		9, 7, 6, 7, 8, 7, 6, 55, 8, 23, 24, 12, 11, 7, 9, 11, 12, 6, 7, 22, 5,
		7, 24, 6, 11, 9, 6, 7, 22, 7, 11, 38, 7, 9, 8, 25, 11, 8, 11, 9, 12,
		8, 12, 5, 38, 5, 38, 5, 11, 7, 5, 6, 21, 6, 10, 53, 8, 7, 24, 10, 27,
		44, 253, 253, 253, 252, 252, 252, 13, 12, 45, 12, 45, 12, 61, 12, 45,
		44, 173,
	}
	pkwareLengthLengths   = []byte{2, 35, 36, 53, 38, 23}
	pkwareDistanceLengths = []byte{2, 20, 53, 230, 247, 151, 248}
)

var (
	pkwareLengthBase  = [16]int{3, 2, 4, 5, 6, 7, 8, 9, 10, 12, 16, 24, 40, 72, 136, 264}
	pkwareLengthExtra = [16]uint{0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8}
)

// expandCodeLengths turns the compact form into one length per symbol.
func expandCodeLengths(compact []byte) []uint8 {
	lengths := make([]uint8, 0, 256)
	for _, b := range compact {
		for repeat := int(b>>4) + 1; repeat > 0; repeat-- {
			lengths = append(lengths, b&0x0F)
		}
	}
	return lengths
}

type pkwareTables struct {
	literal  *huffmanTree
	length   *huffmanTree
	distance *huffmanTree
}

// pkwareTrees builds the three fixed trees on first use. They are never
// modified afterwards, so every decode call shares them.
var pkwareTrees = sync.OnceValues(func() (*pkwareTables, error) {
	literal, err := newHuffmanTree(expandCodeLengths(pkwareLiteralLengths), pkwareMaxCodeLength)
	if err != nil {
		return nil, fmt.Errorf("literal table: %w", err)
	}
	length, err := newHuffmanTree(expandCodeLengths(pkwareLengthLengths), pkwareMaxCodeLength)
	if err != nil {
		return nil, fmt.Errorf("length table: %w", err)
	}
	distance, err := newHuffmanTree(expandCodeLengths(pkwareDistanceLengths), pkwareMaxCodeLength)
	if err != nil {
		return nil, fmt.Errorf("distance table: %w", err)
	}
	return &pkwareTables{literal: literal, length: length, distance: distance}, nil
})

// CodeEntry is one symbol of a canonical Huffman code.
type CodeEntry struct {
	Symbol int
	Length int
	Code   uint32
}

// PKWareCodes lists the fixed PKWARE DCL code for one of the tables
// "literal", "length" or "distance", in symbol order. Symbols without a code
// are omitted.
func PKWareCodes(table string) ([]CodeEntry, error) {
	var compact []byte
	switch table {
	case "literal":
		compact = pkwareLiteralLengths
	case "length":
		compact = pkwareLengthLengths
	case "distance":
		compact = pkwareDistanceLengths
	default:
		return nil, fmt.Errorf("unknown PKWARE table %q", table)
	}

	codes, err := canonicalCodes(expandCodeLengths(compact), pkwareMaxCodeLength)
	if err != nil {
		return nil, err
	}

	entries := make([]CodeEntry, 0, len(codes))
	for symbol, c := range codes {
		if c.length == 0 {
			continue
		}
		entries = append(entries, CodeEntry{Symbol: symbol, Length: int(c.length), Code: c.code})
	}
	return entries, nil
}

// DecompressPKWare explodes a PKWARE DCL stream into exactly expectedSize
// bytes.
func DecompressPKWare(data []byte, expectedSize int) ([]byte, error) {
	if err := checkExpectedSize(expectedSize); err != nil {
		return nil, err
	}
	if len(data) < 2 {
		if len(data) == 0 {
			return nil, ErrEmptyInput
		}
		return nil, ErrTruncated.WithMessage("missing PKWARE header")
	}

	literalMode := data[0]
	dictBits := uint(data[1])
	if literalMode != pkwareBinary && literalMode != pkwareASCII {
		return nil, ErrInvalidHeader.WithMessage(fmt.Sprintf("literal mode %d", literalMode))
	}
	if dictBits < pkwareMinDictBits || dictBits > pkwareMaxDictBits {
		return nil, ErrInvalidDictionary.WithMessage(fmt.Sprintf("dictionary size %d", dictBits))
	}

	tables, err := pkwareTrees()
	if err != nil {
		return nil, err
	}

	br := newBitReader(data[2:])
	output := make([]byte, 0, expectedSize)

	for len(output) < expectedSize {
		flag := br.readBit()
		if flag < 0 {
			return nil, truncatedAt(len(output), expectedSize)
		}

		if flag == 0 {
			var literal int
			if literalMode == pkwareASCII {
				literal, err = tables.literal.decodeSymbol(br, true)
				if err != nil {
					return nil, tokenError(err, len(output), expectedSize)
				}
			} else {
				value, ok := br.getBits(8)
				if !ok {
					return nil, truncatedAt(len(output), expectedSize)
				}
				literal = int(value)
			}
			output = append(output, byte(literal))
			continue
		}

		lengthCode, err := tables.length.decodeSymbol(br, true)
		if err != nil {
			return nil, tokenError(err, len(output), expectedSize)
		}
		extra, ok := br.getBits(pkwareLengthExtra[lengthCode])
		if !ok {
			return nil, truncatedAt(len(output), expectedSize)
		}
		length := pkwareLengthBase[lengthCode] + int(extra)
		if length == pkwareEndOfStream {
			return nil, ErrSizeMismatch.WithMessage(
				fmt.Sprintf("end of stream after %d of %d bytes", len(output), expectedSize))
		}

		distanceCode, err := tables.distance.decodeSymbol(br, true)
		if err != nil {
			return nil, tokenError(err, len(output), expectedSize)
		}
		lowBits := dictBits
		if length == 2 {
			lowBits = 2
		}
		low, ok := br.getBits(lowBits)
		if !ok {
			return nil, truncatedAt(len(output), expectedSize)
		}
		distance := distanceCode<<lowBits + int(low) + 1
		if distance > len(output) {
			return nil, ErrDistanceTooFar.WithMessage(
				fmt.Sprintf("distance %d with only %d bytes written", distance, len(output)))
		}

		// Byte by byte: when distance < length the copy reads bytes it has
		// just written, which repeats the pattern.
		from := len(output) - distance
		for i := 0; i < length && len(output) < expectedSize; i++ {
			output = append(output, output[from+i])
		}
	}

	return output, nil
}

func truncatedAt(written, expectedSize int) error {
	return ErrTruncated.WithMessage(
		fmt.Sprintf("bitstream ended after %d of %d bytes", written, expectedSize))
}

func tokenError(err error, written, expectedSize int) error {
	if errors.Is(err, ErrTruncated) {
		return truncatedAt(written, expectedSize)
	}
	return err
}
