// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import "fmt"

// Sparse streams are a sequence of two-byte tokens. A control byte of 0 is
// followed by one literal byte; a control byte n in 1..255 is followed by a
// value byte that is repeated n times. 255 is an ordinary run.
const sparseMaxRun = 255

// DecompressSparse decodes a sparse stream into expectedSize bytes. The last
// run is cut short if it would overshoot expectedSize.
//
// If the input runs out first, the bytes decoded so far are returned along
// with the error.
func DecompressSparse(data []byte, expectedSize int) ([]byte, error) {
	if err := checkExpectedSize(expectedSize); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []byte{}, ErrEmptyInput
	}

	output, err := decodeSparse(data, expectedSize)
	if err != nil {
		return output, err
	}
	if len(output) != expectedSize {
		return output, ErrSizeMismatch.WithMessage(
			fmt.Sprintf("input ended after %d of %d bytes", len(output), expectedSize))
	}
	return output, nil
}

// decodeSparse decodes tokens until the input ends or limit bytes have been
// produced.
func decodeSparse(data []byte, limit int) ([]byte, error) {
	output := make([]byte, 0, min(limit, 2*len(data)))
	pos := 0
	for pos < len(data) && len(output) < limit {
		control := data[pos]
		pos++
		if pos >= len(data) {
			return output, ErrTruncated.WithMessage(
				fmt.Sprintf("control byte 0x%02X at offset %d has no value byte", control, pos-1))
		}
		value := data[pos]
		pos++

		if control == 0 {
			output = append(output, value)
			continue
		}
		for i := 0; i < int(control) && len(output) < limit; i++ {
			output = append(output, value)
		}
	}
	return output, nil
}

// CompressSparse encodes data as a sparse stream. Runs of two or more equal
// bytes become run tokens of at most 255; everything else is written as
// literal tokens.
func CompressSparse(data []byte) []byte {
	output := make([]byte, 0, len(data)/2+2)
	for i := 0; i < len(data); {
		run := 1
		for i+run < len(data) && data[i+run] == data[i] && run < sparseMaxRun {
			run++
		}
		if run == 1 {
			output = append(output, 0, data[i])
		} else {
			output = append(output, byte(run), data[i])
		}
		i += run
	}
	return output
}
