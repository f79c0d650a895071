// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"sort"

	"github.com/dsnet/compress/bzip2"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zlib"
)

// Compression type constants. The first byte of a compressed sector is a
// bitmask of these.
const (
	CompressionHuffman   = 0x01 // Huffman (used on wave files only)
	CompressionZlib      = 0x02 // Zlib compression
	CompressionPKWare    = 0x08 // PKWare DCL compression
	CompressionBzip2     = 0x10 // BZip2 compression
	CompressionSparse    = 0x20 // Sparse/RLE compression (SC2+)
	CompressionADPCMMono = 0x40 // ADPCM mono audio
	CompressionADPCM     = 0x80 // ADPCM stereo audio
	CompressionLZMA      = 0x12 // LZMA compression (SC2+)

	compressionPrimary = CompressionZlib | CompressionPKWare | CompressionBzip2
	compressionKnown   = compressionPrimary | CompressionHuffman | CompressionSparse |
		CompressionADPCMMono | CompressionADPCM
)

// MaxOutputSize is the largest output any decoder in this package will
// allocate for a single call.
const MaxOutputSize = 256 << 20

// sizeUnknown asks decompressZlib to read until the end of the stream.
const sizeUnknown = -1

func checkExpectedSize(expectedSize int) error {
	if expectedSize < 0 || expectedSize > MaxOutputSize {
		return ErrOutputTooLarge.WithMessage(
			fmt.Sprintf("%d bytes requested, limit is %d", expectedSize, MaxOutputSize))
	}
	return nil
}

// Decoder is the signature shared by every decoder in this package.
type Decoder func(data []byte, expectedSize int) ([]byte, error)

var decoders = map[string]Decoder{
	"auto":    Decompress,
	"huffman": DecompressHuffman,
	"zlib":    DecompressZlib,
	"pkware":  DecompressPKWare,
	"bzip2":   DecompressBzip2,
	"sparse":  DecompressSparse,
}

// DecoderFor returns the decoder registered under name. "auto" reads the
// compression mask from the first byte; every other name expects raw codec
// input.
func DecoderFor(name string) (Decoder, error) {
	decoder, ok := decoders[name]
	if !ok {
		return nil, ErrUnsupported.WithMessage(fmt.Sprintf("no decoder named %q", name))
	}
	return decoder, nil
}

// DecoderNames lists the names accepted by [DecoderFor], sorted.
func DecoderNames() []string {
	names := make([]string, 0, len(decoders))
	for name := range decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compress compresses data with the methods in mask and prepends the mask
// byte. Zlib, BZip2 and Sparse are supported, as is Sparse combined with one
// of the other two.
func Compress(data []byte, mask byte) ([]byte, error) {
	var buf bytes.Buffer

	// Write compression type byte
	buf.WriteByte(mask)

	payload := data
	if mask&CompressionSparse != 0 {
		payload = CompressSparse(payload)
	}

	switch mask &^ CompressionSparse {
	case 0:
		if mask == 0 {
			return nil, ErrUnsupported.WithMessage("empty compression mask")
		}
		buf.Write(payload)

	case CompressionZlib:
		w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, ErrStream.Wrap(err)
		}
		if _, err := w.Write(payload); err != nil {
			return nil, ErrStream.Wrap(err)
		}
		if err := w.Close(); err != nil {
			return nil, ErrStream.Wrap(err)
		}

	case CompressionBzip2:
		w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
		if err != nil {
			return nil, ErrStream.Wrap(err)
		}
		if _, err := w.Write(payload); err != nil {
			return nil, ErrStream.Wrap(err)
		}
		if err := w.Close(); err != nil {
			return nil, ErrStream.Wrap(err)
		}

	default:
		return nil, ErrUnsupported.WithMessage(fmt.Sprintf("cannot compress with mask 0x%02X", mask))
	}

	return buf.Bytes(), nil
}

// Decompress decompresses MPQ-compressed data. The first byte is the
// compression mask; the rest is decoded in the reverse order of compression:
//
//  1. BZip2, Zlib or PKWare (at most one)
//  2. Sparse
//  3. Huffman
//
// A mask of zero means the data is stored as is and must be expectedSize
// bytes long. ADPCM, LZMA and unknown bits are reported together as
// [ErrUnsupported].
func Decompress(data []byte, expectedSize int) ([]byte, error) {
	if err := checkExpectedSize(expectedSize); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	compressionType := data[0]
	data = data[1:]

	switch compressionType {
	case 0:
		if len(data) != expectedSize {
			return nil, ErrSizeMismatch.WithMessage(
				fmt.Sprintf("stored data is %d bytes, want %d", len(data), expectedSize))
		}
		return bytes.Clone(data), nil

	case CompressionZlib:
		return DecompressZlib(data, expectedSize)

	case CompressionPKWare:
		return DecompressPKWare(data, expectedSize)

	case CompressionBzip2:
		return DecompressBzip2(data, expectedSize)

	case CompressionSparse:
		return DecompressSparse(data, expectedSize)

	case CompressionHuffman:
		return DecompressHuffman(data, expectedSize)

	case CompressionLZMA:
		return nil, ErrUnsupported.WithMessage("LZMA")
	}

	if err := unsupportedStages(compressionType); err != nil {
		return nil, err
	}
	return decompressStages(data, compressionType, expectedSize)
}

// unsupportedStages reports every part of a multi-compression mask that
// cannot be decoded.
func unsupportedStages(compressionType byte) error {
	var result *multierror.Error

	if compressionType&CompressionADPCMMono != 0 {
		result = multierror.Append(result, ErrUnsupported.WithMessage("ADPCM mono"))
	}
	if compressionType&CompressionADPCM != 0 {
		result = multierror.Append(result, ErrUnsupported.WithMessage("ADPCM stereo"))
	}
	if unknown := compressionType &^ compressionKnown; unknown != 0 {
		result = multierror.Append(result, ErrUnsupported.WithMessage(
			fmt.Sprintf("unknown bits 0x%02X", unknown)))
	}
	if bits.OnesCount8(compressionType&compressionPrimary) > 1 {
		result = multierror.Append(result, ErrUnsupported.WithMessage(
			fmt.Sprintf("more than one primary method in 0x%02X", compressionType)))
	}
	if compressionType&CompressionPKWare != 0 && compressionType&(CompressionSparse|CompressionHuffman) != 0 {
		result = multierror.Append(result, ErrUnsupported.WithMessage(
			"PKWare can only be combined as the last stage"))
	}

	return result.ErrorOrNil()
}

func decompressStages(data []byte, compressionType byte, expectedSize int) ([]byte, error) {
	result := data
	var err error

	hasSparse := compressionType&CompressionSparse != 0
	hasHuffman := compressionType&CompressionHuffman != 0
	last := !hasSparse && !hasHuffman

	// Step 1: primary compression
	switch compressionType & compressionPrimary {
	case CompressionBzip2:
		size := 0
		if last {
			size = expectedSize
		}
		result, err = DecompressBzip2(result, size)
		if err != nil {
			return nil, fmt.Errorf("multi bzip2: %w", err)
		}

	case CompressionZlib:
		size := sizeUnknown
		if last {
			size = expectedSize
		}
		result, err = decompressZlib(result, size)
		if err != nil {
			return nil, fmt.Errorf("multi zlib: %w", err)
		}

	case CompressionPKWare:
		result, err = DecompressPKWare(result, expectedSize)
		if err != nil {
			return nil, fmt.Errorf("multi pkware: %w", err)
		}
	}

	// Step 2: sparse
	if hasSparse {
		if hasHuffman {
			result, err = decodeSparse(result, MaxOutputSize)
		} else {
			result, err = DecompressSparse(result, expectedSize)
		}
		if err != nil {
			return nil, fmt.Errorf("multi sparse: %w", err)
		}
	}

	// Step 3: Huffman
	if hasHuffman {
		result, err = DecompressHuffman(result, expectedSize)
		if err != nil {
			return nil, fmt.Errorf("multi huffman: %w", err)
		}
	}

	return result, nil
}

// DecompressZlib decompresses a zlib stream into exactly expectedSize bytes.
func DecompressZlib(data []byte, expectedSize int) ([]byte, error) {
	if err := checkExpectedSize(expectedSize); err != nil {
		return nil, err
	}
	return decompressZlib(data, expectedSize)
}

// decompressZlib decompresses zlib-compressed data. With sizeUnknown it reads
// to the end of the stream, up to MaxOutputSize.
func decompressZlib(data []byte, expectedSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, ErrStream.Wrap(err)
	}
	defer r.Close()

	if expectedSize == sizeUnknown {
		result, err := io.ReadAll(io.LimitReader(r, MaxOutputSize+1))
		if err != nil {
			return nil, zlibError(err)
		}
		if len(result) > MaxOutputSize {
			return nil, ErrOutputTooLarge.WithMessage(
				fmt.Sprintf("zlib output exceeds %d bytes", MaxOutputSize))
		}
		return result, nil
	}

	result := make([]byte, expectedSize)
	n, err := io.ReadFull(r, result)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, ErrSizeMismatch.WithMessage(
			fmt.Sprintf("zlib produced %d bytes, want %d", n, expectedSize))
	}
	if err != nil {
		return nil, zlibError(err)
	}

	// The stream must end here; its checksum is verified on this read.
	var extra [1]byte
	for {
		n, err := r.Read(extra[:])
		if n > 0 {
			return nil, ErrSizeMismatch.WithMessage(
				fmt.Sprintf("zlib produced more than %d bytes", expectedSize))
		}
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return nil, zlibError(err)
		}
	}
}

func zlibError(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated.WithMessage("zlib stream ended early")
	}
	return ErrStream.Wrap(err)
}
