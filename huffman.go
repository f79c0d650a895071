// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"errors"
	"fmt"

	"github.com/boljen/go-bitmap"
)

const (
	// maxHuffmanCodeLength is the deepest code a serialized length table can
	// describe.
	maxHuffmanCodeLength = 16

	// maxSymbolsPerDepth bounds the count byte of each length table entry.
	maxSymbolsPerDepth = 128

	// MaxHuffmanSymbols caps how many symbols DecodeHuffmanLiterals produces
	// for a single call, whatever the input looks like.
	MaxHuffmanSymbols = 1 << 20
)

// huffmanCode is a canonical code: the low `length` bits of `code`, most
// significant bit first.
type huffmanCode struct {
	code   uint32
	length uint8
}

// huffmanNode is one entry of a tree arena. Children are indexes into the
// arena; 0 means "no child", which is unambiguous since node 0 is the root.
type huffmanNode struct {
	children [2]uint16
	symbol   uint8
	leaf     bool
}

type huffmanTree struct {
	nodes     []huffmanNode
	maxLength uint
}

// canonicalCodes assigns codes to the symbols of `lengths` (indexed by
// symbol, 0 meaning unused) the way RFC 1951 does: shorter codes first, and
// within one length in ascending symbol order.
func canonicalCodes(lengths []uint8, maxLength uint) ([]huffmanCode, error) {
	var count [maxHuffmanCodeLength + 1]uint32

	total := 0
	for symbol, length := range lengths {
		if uint(length) > maxLength {
			return nil, ErrInvalidLengthTable.WithMessage(
				fmt.Sprintf("symbol %d has length %d, max is %d", symbol, length, maxLength))
		}
		if length != 0 {
			count[length]++
			total++
		}
	}
	if total == 0 {
		return nil, ErrInvalidLengthTable.WithMessage("no symbols")
	}

	left := 1
	for length := uint(1); length <= maxLength; length++ {
		left <<= 1
		left -= int(count[length])
		if left < 0 {
			return nil, ErrOversubscribed.WithMessage(
				fmt.Sprintf("too many codes of length %d", length))
		}
	}

	var next [maxHuffmanCodeLength + 1]uint32
	code := uint32(0)
	for length := uint(1); length <= maxLength; length++ {
		code = (code + count[length-1]) << 1
		next[length] = code
	}

	codes := make([]huffmanCode, len(lengths))
	for symbol, length := range lengths {
		if length == 0 {
			continue
		}
		codes[symbol] = huffmanCode{code: next[length], length: length}
		next[length]++
	}
	return codes, nil
}

// newHuffmanTree builds the decode tree for a set of code lengths. At most
// 256 symbols are supported.
func newHuffmanTree(lengths []uint8, maxLength uint) (*huffmanTree, error) {
	codes, err := canonicalCodes(lengths, maxLength)
	if err != nil {
		return nil, err
	}

	tree := &huffmanTree{
		nodes:     make([]huffmanNode, 1, 2*len(lengths)),
		maxLength: maxLength,
	}
	for symbol, c := range codes {
		if c.length == 0 {
			continue
		}

		current := 0
		for bit := int(c.length) - 1; bit >= 0; bit-- {
			if tree.nodes[current].leaf {
				return nil, ErrOversubscribed.WithMessage(
					fmt.Sprintf("code for symbol %d runs through a leaf", symbol))
			}
			direction := (c.code >> uint(bit)) & 1
			next := tree.nodes[current].children[direction]
			if next == 0 {
				tree.nodes = append(tree.nodes, huffmanNode{})
				next = uint16(len(tree.nodes) - 1)
				tree.nodes[current].children[direction] = next
			} else if bit == 0 {
				return nil, ErrOversubscribed.WithMessage(
					fmt.Sprintf("code for symbol %d is already taken", symbol))
			}
			current = int(next)
		}
		tree.nodes[current].leaf = true
		tree.nodes[current].symbol = uint8(symbol)
	}
	return tree, nil
}

// decodeSymbol walks from the root to a leaf, one bit per level: 0 goes to
// children[0], 1 to children[1]. With invert set every bit is flipped first,
// which is how PKWARE DCL streams store their codes.
func (t *huffmanTree) decodeSymbol(br *bitReader, invert bool) (int, error) {
	node := 0
	for depth := uint(0); !t.nodes[node].leaf; depth++ {
		if depth >= t.maxLength {
			return -1, ErrInvalidCode.WithMessage("code longer than the longest length")
		}

		bit := br.readBit()
		if bit < 0 {
			return -1, ErrTruncated
		}
		if invert {
			bit ^= 1
		}

		next := int(t.nodes[node].children[bit])
		if next == 0 || next >= len(t.nodes) {
			return -1, ErrInvalidCode.WithMessage(
				fmt.Sprintf("no node for bit %d at depth %d", bit, depth+1))
		}
		node = next
	}
	return int(t.nodes[node].symbol), nil
}

// parseLengthTable reads the serialized code lengths at the start of a
// Huffman stream. For each depth from 1 to 16 there is a count byte followed
// by that many symbol bytes; a count of zero ends the table early. It
// returns the length of every symbol and the number of bytes consumed.
func parseLengthTable(data []byte) ([]uint8, int, error) {
	lengths := make([]uint8, 256)
	seen := bitmap.New(256)

	pos := 0
	found := 0
	for depth := 1; depth <= maxHuffmanCodeLength && pos < len(data); depth++ {
		count := int(data[pos])
		pos++
		if count == 0 {
			break
		}
		if count > maxSymbolsPerDepth {
			return nil, 0, ErrInvalidLengthTable.WithMessage(
				fmt.Sprintf("%d symbols at depth %d", count, depth))
		}
		if pos+count > len(data) {
			return nil, 0, ErrInvalidLengthTable.Wrap(ErrTruncated)
		}

		for _, symbol := range data[pos : pos+count] {
			if seen.Get(int(symbol)) {
				return nil, 0, ErrInvalidLengthTable.WithMessage(
					fmt.Sprintf("symbol 0x%02X listed twice", symbol))
			}
			seen.Set(int(symbol), true)
			lengths[symbol] = uint8(depth)
		}
		pos += count
		found += count
	}

	if found == 0 {
		return nil, 0, ErrInvalidLengthTable.WithMessage("no symbols")
	}
	return lengths, pos, nil
}

// readHuffmanTree parses the length table at the start of data and builds
// its decode tree.
func readHuffmanTree(data []byte) (*huffmanTree, int, error) {
	lengths, consumed, err := parseLengthTable(data)
	if err != nil {
		return nil, 0, err
	}
	tree, err := newHuffmanTree(lengths, maxHuffmanCodeLength)
	if err != nil {
		return nil, 0, err
	}
	return tree, consumed, nil
}

// DecodeHuffmanLiterals decodes a length table followed by a bitstream of
// canonical codes. Decoding stops when the bitstream runs out (an incomplete
// trailing code is ignored) or after limit symbols. A limit <= 0 or above
// [MaxHuffmanSymbols] means [MaxHuffmanSymbols].
//
// Input consisting of nothing but the length table decodes to zero symbols.
func DecodeHuffmanLiterals(data []byte, limit int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if limit <= 0 || limit > MaxHuffmanSymbols {
		limit = MaxHuffmanSymbols
	}

	tree, consumed, err := readHuffmanTree(data)
	if err != nil {
		return nil, err
	}
	if consumed >= len(data) {
		return []byte{}, nil
	}

	br := newBitReader(data[consumed:])
	output := make([]byte, 0, min(limit, br.bitsLeft()))
	for len(output) < limit && br.bitsLeft() > 0 {
		symbol, err := tree.decodeSymbol(br, false)
		if errors.Is(err, ErrTruncated) {
			break
		}
		if err != nil {
			return nil, err
		}
		output = append(output, byte(symbol))
	}
	return output, nil
}

// DecompressHuffman decodes exactly expectedSize symbols from a length table
// followed by a bitstream of canonical codes.
func DecompressHuffman(data []byte, expectedSize int) ([]byte, error) {
	if err := checkExpectedSize(expectedSize); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	tree, consumed, err := readHuffmanTree(data)
	if err != nil {
		return nil, err
	}

	br := newBitReader(data[consumed:])
	output := make([]byte, 0, expectedSize)
	for len(output) < expectedSize {
		symbol, err := tree.decodeSymbol(br, false)
		if errors.Is(err, ErrTruncated) {
			return nil, ErrSizeMismatch.WithMessage(
				fmt.Sprintf("bitstream ended after %d of %d bytes", len(output), expectedSize))
		}
		if err != nil {
			return nil, err
		}
		output = append(output, byte(symbol))
	}
	return output, nil
}
