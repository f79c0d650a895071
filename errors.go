// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"github.com/hashicorp/go-multierror"
)

// CodecError is returned by every decoder in this package. Use [errors.Is]
// against the exported sentinels to find out what went wrong.
type CodecError interface {
	error
	// WithMessage appends detail to the error text. The result still
	// matches the same sentinel.
	WithMessage(message string) CodecError
	// Wrap records err as a cause. The result matches both the sentinel and
	// err.
	Wrap(err error) CodecError
}

// Errors returned by the decoders. Each one identifies a failure kind; the
// errors actually returned carry extra detail but match one of these.
var (
	ErrEmptyInput         = newCodecError("empty compressed data")
	ErrTruncated          = newCodecError("compressed data truncated")
	ErrInvalidHeader      = newCodecError("invalid stream header")
	ErrInvalidDictionary  = newCodecError("invalid dictionary size")
	ErrInvalidLengthTable = newCodecError("invalid Huffman length table")
	ErrOversubscribed     = newCodecError("over-subscribed Huffman code")
	ErrInvalidCode        = newCodecError("invalid Huffman code")
	ErrDistanceTooFar     = newCodecError("distance is too far back")
	ErrSizeMismatch       = newCodecError("decompressed size mismatch")
	ErrOutputTooLarge     = newCodecError("requested output too large")
	ErrStream             = newCodecError("decompression stream error")
	ErrUnsupported        = newCodecError("unsupported compression")
	ErrInvalidSector      = newCodecError("invalid sector layout")
)

// codecError is either a sentinel (kind == nil) or an error derived from
// one. Derived errors point at their sentinel directly, however many times
// detail was added.
type codecError struct {
	kind  *codecError
	text  string
	cause *multierror.Error
}

func newCodecError(text string) CodecError {
	return &codecError{text: text}
}

func (e *codecError) sentinel() *codecError {
	if e.kind == nil {
		return e
	}
	return e.kind
}

func (e *codecError) Error() string {
	return e.text
}

func (e *codecError) WithMessage(message string) CodecError {
	return &codecError{
		kind:  e.sentinel(),
		text:  e.text + ": " + message,
		cause: e.cause,
	}
}

func (e *codecError) Wrap(err error) CodecError {
	var causes []error
	if e.cause != nil {
		causes = append(causes, e.cause.Errors...)
	}
	return &codecError{
		kind:  e.sentinel(),
		text:  e.text + ": " + err.Error(),
		cause: multierror.Append(nil, append(causes, err)...),
	}
}

// Is matches the sentinel this error was derived from.
func (e *codecError) Is(target error) bool {
	t, ok := target.(*codecError)
	return ok && t == e.sentinel()
}

func (e *codecError) Unwrap() error {
	if e.cause == nil {
		return nil
	}
	return e.cause
}
