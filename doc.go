// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package mpq decodes the compression methods found inside MPQ (Mo'PaQ)
archives, as used by Diablo, StarCraft and Warcraft III.

Each method has its own entry point that takes the compressed bytes and the
size the output must have:

  - [DecompressHuffman] for canonical Huffman streams
  - [DecompressPKWare] for PKWARE Data Compression Library ("implode") streams
  - [DecompressSparse] for the sparse run-length format
  - [DecompressBzip2] and [DecompressZlib] for the general purpose methods

[Decompress] reads the compression mask byte at the start of an MPQ sector
and chains the methods it names. [DecodeMember] goes one step further and
decodes a whole archive member: it decrypts and splits the stored bytes into
sectors and decompresses each of them.

# Basic Usage

	out, err := mpq.Decompress(sector, 4096)
	if errors.Is(err, mpq.ErrSizeMismatch) {
		// the sector decoded to a different size
	}

Every error returned by this package wraps one of the Err* sentinels, so
[errors.Is] can tell the failure modes apart.

# Limits

No decoder allocates more than [MaxOutputSize] bytes for a single call, and
[DecodeHuffmanLiterals] never produces more than [MaxHuffmanSymbols] symbols.
All decoders are safe for concurrent use; the lookup tables they share are
built once and never modified.

# Limitations

  - No support for ADPCM audio compression
  - No support for LZMA compression
  - No support for PKWare implode compression when writing
*/
package mpq
