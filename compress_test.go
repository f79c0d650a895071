// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zlibFixture(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func withMask(mask byte, payload []byte) []byte {
	return append([]byte{mask}, payload...)
}

func TestCompressRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"text":   bytes.Repeat([]byte("Fresh meat! "), 300),
		"zeroed": append(make([]byte, 3000), 1, 2, 3),
		"single": {0x42},
	}
	masks := []byte{
		CompressionZlib,
		CompressionBzip2,
		CompressionSparse,
		CompressionSparse | CompressionZlib,
		CompressionSparse | CompressionBzip2,
	}

	for name, data := range inputs {
		for _, mask := range masks {
			compressed, err := Compress(data, mask)
			require.NoError(t, err, "%s with mask 0x%02X", name, mask)
			assert.Equal(t, mask, compressed[0])

			output, err := Decompress(compressed, len(data))
			require.NoError(t, err, "%s with mask 0x%02X", name, mask)
			assert.Equal(t, data, output, "%s with mask 0x%02X", name, mask)
		}
	}
}

func TestCompressUnsupportedMask(t *testing.T) {
	for _, mask := range []byte{0, CompressionPKWare, CompressionHuffman, CompressionZlib | CompressionBzip2, CompressionADPCM} {
		_, err := Compress([]byte("data"), mask)
		assert.ErrorIs(t, err, ErrUnsupported, "mask 0x%02X", mask)
	}
}

func TestDecompressSingleMethods(t *testing.T) {
	text := []byte("AIAIAIAIAIAIA")

	tests := []struct {
		name     string
		data     []byte
		expected []byte
	}{
		{"stored", withMask(0, text), text},
		{"zlib", withMask(CompressionZlib, zlibFixture(t, text)), text},
		{"bzip2", withMask(CompressionBzip2, bzip2Fixture(t, text)), text},
		{"pkware", withMask(CompressionPKWare, []byte{0x00, 0x04, 0x82, 0x24, 0x25, 0x8f, 0x80, 0x7f}), text},
		{"sparse", withMask(CompressionSparse, CompressSparse(text)), text},
		{"huffman", withMask(CompressionHuffman, []byte{2, 'A', 'I', 0, 0xAA, 0xAA}), []byte("AIAIAIAIAIAIA")},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			output, err := Decompress(test.data, len(test.expected))
			require.NoError(t, err)
			assert.Equal(t, test.expected, output)
		})
	}
}

func TestDecompressStoredIsCopied(t *testing.T) {
	data := withMask(0, []byte("abc"))
	output, err := Decompress(data, 3)
	require.NoError(t, err)

	output[0] = 'X'
	assert.Equal(t, byte('a'), data[1])
}

func TestDecompressChainedStages(t *testing.T) {
	text := []byte("ABCABABBA")
	huffman := []byte{1, 'A', 2, 'B', 'C', 0, 0x5A, 0x0A}

	tests := []struct {
		name string
		mask byte
		data []byte
	}{
		{
			name: "huffman inside sparse",
			mask: CompressionSparse | CompressionHuffman,
			data: CompressSparse(huffman),
		},
		{
			name: "huffman inside zlib",
			mask: CompressionZlib | CompressionHuffman,
			data: zlibFixture(t, huffman),
		},
		{
			name: "huffman inside sparse inside bzip2",
			mask: CompressionBzip2 | CompressionSparse | CompressionHuffman,
			data: bzip2Fixture(t, CompressSparse(huffman)),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			output, err := Decompress(withMask(test.mask, test.data), len(text))
			require.NoError(t, err)
			assert.Equal(t, text, output)
		})
	}
}

func TestDecompressErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		size     int
		expected error
	}{
		{"empty input", []byte{}, 4, ErrEmptyInput},
		{"stored size differs", withMask(0, []byte("abc")), 4, ErrSizeMismatch},
		{"LZMA", withMask(CompressionLZMA, []byte{0x5D, 0, 0}), 4, ErrUnsupported},
		{"ADPCM mono", withMask(CompressionADPCMMono|CompressionHuffman, []byte{1}), 4, ErrUnsupported},
		{"ADPCM stereo", withMask(CompressionADPCM, []byte{1}), 4, ErrUnsupported},
		{"unknown bit", withMask(0x04|CompressionZlib, []byte{1}), 4, ErrUnsupported},
		{"two primary methods", withMask(CompressionPKWare|CompressionZlib, []byte{1}), 4, ErrUnsupported},
		{"pkware before sparse", withMask(CompressionPKWare|CompressionSparse, []byte{1}), 4, ErrUnsupported},
		{"zlib garbage", withMask(CompressionZlib, []byte{0xDE, 0xAD, 0xBE, 0xEF}), 4, ErrStream},
		{"zlib empty", withMask(CompressionZlib, nil), 4, ErrEmptyInput},
		{"size over limit", withMask(0, nil), MaxOutputSize + 1, ErrOutputTooLarge},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			output, err := Decompress(test.data, test.size)
			assert.ErrorIs(t, err, test.expected)
			assert.Nil(t, output)
		})
	}
}

func TestDecompressReportsEveryUnsupportedPart(t *testing.T) {
	_, err := Decompress(withMask(CompressionADPCM|CompressionADPCMMono|0x04|CompressionZlib, []byte{1}), 4)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 3)
	for _, e := range merr.Errors {
		assert.ErrorIs(t, e, ErrUnsupported)
	}
}

func TestDecompressZlibSize(t *testing.T) {
	text := []byte("The Butcher")
	compressed := zlibFixture(t, text)

	output, err := DecompressZlib(compressed, len(text))
	require.NoError(t, err)
	assert.Equal(t, text, output)

	_, err = DecompressZlib(compressed, len(text)+1)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = DecompressZlib(compressed, len(text)-1)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	output, err = decompressZlib(compressed, sizeUnknown)
	require.NoError(t, err)
	assert.Equal(t, text, output)
}

func TestDecompressZlibChecksTrailer(t *testing.T) {
	text := bytes.Repeat([]byte("Not even death can save you from me. "), 7)
	compressed := zlibFixture(t, text)

	badChecksum := bytes.Clone(compressed)
	badChecksum[len(badChecksum)-1] ^= 0xFF

	noTrailer := compressed[:len(compressed)-4]

	tests := []struct {
		name     string
		data     []byte
		expected error
	}{
		{"checksum mismatch", badChecksum, ErrStream},
		{"checksum missing", noTrailer, ErrTruncated},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			output, err := DecompressZlib(test.data, len(text))
			assert.ErrorIs(t, err, test.expected)
			assert.Nil(t, output)

			output, err = Decompress(withMask(CompressionZlib, test.data), len(text))
			assert.ErrorIs(t, err, test.expected)
			assert.Nil(t, output)

			output, err = decompressZlib(test.data, sizeUnknown)
			assert.ErrorIs(t, err, test.expected)
			assert.Nil(t, output)
		})
	}
}

func TestDecoderFor(t *testing.T) {
	for _, name := range DecoderNames() {
		decoder, err := DecoderFor(name)
		require.NoError(t, err, name)
		assert.NotNil(t, decoder, name)
	}
	assert.Equal(t, []string{"auto", "bzip2", "huffman", "pkware", "sparse", "zlib"}, DecoderNames())

	decoder, err := DecoderFor("pkware")
	require.NoError(t, err)
	output, err := decoder([]byte{0x00, 0x04, 0x82, 0x24, 0x25, 0x8f, 0x80, 0x7f}, 13)
	require.NoError(t, err)
	assert.Equal(t, "AIAIAIAIAIAIA", string(output))

	_, err = DecoderFor("lzma")
	assert.ErrorIs(t, err, ErrUnsupported)
}
