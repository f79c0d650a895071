// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// bzip2Signature starts every bzip2 stream. Some archives strip it, in which
// case a default one is put back before decoding.
var (
	bzip2Signature     = []byte("BZh")
	bzip2DefaultHeader = []byte("BZh9")
)

// bzip2Stream is the part of a bzip2 decoder the adapter needs.
type bzip2Stream interface {
	io.Reader
	io.Closer
}

// openBzip2Stream creates the decoder for one call. Tests replace it to
// watch how streams are opened and closed.
var openBzip2Stream = func(r io.Reader) (bzip2Stream, error) {
	return bzip2.NewReader(r, nil)
}

// DecompressBzip2 decompresses a bzip2 stream. The output buffer starts at
// expectedSize (or four times the input size if expectedSize is 0) and
// doubles whenever it fills up. A non-zero expectedSize must match the
// decompressed size exactly.
func DecompressBzip2(data []byte, expectedSize int) ([]byte, error) {
	if err := checkExpectedSize(expectedSize); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	var input io.Reader = bytes.NewReader(data)
	if !bytes.HasPrefix(data, bzip2Signature) {
		input = io.MultiReader(bytes.NewReader(bzip2DefaultHeader), input)
	}

	stream, err := openBzip2Stream(input)
	if err != nil {
		return nil, ErrStream.Wrap(err)
	}
	defer stream.Close()

	size := expectedSize
	if size == 0 {
		size = 4 * len(data)
	}
	output := make([]byte, size)

	written := 0
	for {
		if written == len(output) {
			if expectedSize != 0 {
				if err := bzip2AtEnd(stream, expectedSize); err != nil {
					return nil, err
				}
				break
			}
			if len(output) >= MaxOutputSize {
				return nil, ErrOutputTooLarge.WithMessage(
					fmt.Sprintf("bzip2 output exceeds %d bytes", MaxOutputSize))
			}
			grown := make([]byte, min(2*len(output), MaxOutputSize))
			copy(grown, output)
			output = grown
		}

		n, err := stream.Read(output[written:])
		written += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, bzip2Error(err)
		}
	}

	if expectedSize != 0 && written != expectedSize {
		return nil, ErrSizeMismatch.WithMessage(
			fmt.Sprintf("bzip2 produced %d bytes, want %d", written, expectedSize))
	}
	return output[:written], nil
}

// bzip2AtEnd checks that a stream which already produced expectedSize bytes
// has nothing more to give.
func bzip2AtEnd(stream io.Reader, expectedSize int) error {
	var extra [1]byte
	for {
		n, err := stream.Read(extra[:])
		if n > 0 {
			return ErrSizeMismatch.WithMessage(
				fmt.Sprintf("bzip2 produced more than %d bytes", expectedSize))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return bzip2Error(err)
		}
	}
}

func bzip2Error(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated.WithMessage("bzip2 stream ended before its end marker")
	}
	return ErrStream.Wrap(err)
}
