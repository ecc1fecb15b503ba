// Package sse turns raw upstream bytes into line-delimited event-stream frames.
//
// Reads from an HTTP body arrive in arbitrary sizes, so a frame can be split
// across two reads. NextFrame keeps the unterminated tail of each chunk as
// carry-over and prepends it to the next chunk before splitting.
package sse

import (
	"bytes"
	"errors"
	"io"
)

const (
	// DefaultChunkSize is the read size used by Reader.
	DefaultChunkSize = 4 * 1024

	// MaxLineSize bounds the carry-over buffer. Larger lines fail with ErrLineTooLong.
	MaxLineSize = 1 * 1024 * 1024
)

// ErrLineTooLong is returned when a single line exceeds MaxLineSize without a newline.
var ErrLineTooLong = errors.New("sse: line exceeds maximum size")

var dataPrefix = []byte("data:")

// NextFrame appends chunk to carry and splits the result on '\n'.
// It returns every complete line (without the terminator and any trailing '\r')
// and the new carry-over holding the unterminated remainder.
// The returned lines do not alias chunk, so callers may reuse their read buffer.
func NextFrame(chunk, carry []byte) (lines [][]byte, rest []byte) {
	buf := append(carry, chunk...)

	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := buf[:i]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, append([]byte(nil), line...))
		buf = buf[i+1:]
	}

	if len(buf) == 0 {
		return lines, carry[:0]
	}
	// compact the tail to the front so carry does not grow without bound
	rest = append(carry[:0], buf...)
	return lines, rest
}

// Payload returns the value of a "data:" line. One optional space after the
// colon is removed. ok is false for any other line kind.
func Payload(line []byte) (payload []byte, ok bool) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	v := line[len(dataPrefix):]
	if len(v) > 0 && v[0] == ' ' {
		v = v[1:]
	}
	return v, true
}

// Reader yields complete lines from an underlying io.Reader.
type Reader struct {
	r       io.Reader
	buf     []byte
	carry   []byte
	pending [][]byte
	err     error
}

// NewReader returns a Reader that reads r in chunks of chunkSize bytes
// (DefaultChunkSize when chunkSize <= 0).
func NewReader(r io.Reader, chunkSize int) *Reader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reader{
		r:   r,
		buf: make([]byte, chunkSize),
	}
}

// Next returns the next complete line. At end of input it returns io.EOF;
// an unterminated trailing line is discarded. Read errors are returned as-is
// once all lines decoded before the error have been consumed.
func (r *Reader) Next() ([]byte, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return nil, r.err
		}

		n, err := r.r.Read(r.buf)
		if n > 0 {
			r.pending, r.carry = NextFrame(r.buf[:n], r.carry)
			if len(r.carry) > MaxLineSize {
				r.carry = nil
				r.err = ErrLineTooLong
			}
		}
		if err != nil {
			if r.err == nil {
				r.err = err
			}
			r.carry = nil
		}
	}

	line := r.pending[0]
	r.pending = r.pending[1:]
	return line, nil
}
