// Package protocol defines the wire messages exchanged between gateway,
// screen, and robot processes, and the newline-terminated JSON framing
// every one of those streams uses uniformly.
package protocol

import (
	"bufio"
	"encoding/json"
	"io"
)

// WriteFrame encodes v as JSON followed by a newline and writes it to w.
// Every connection in this system - order intake included - uses this one
// framing, rather than mixing framed and unframed streams.
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// FrameReader reads newline-terminated JSON records off a stream.
type FrameReader struct {
	scanner *bufio.Scanner
}

// NewFrameReader wraps r for line-delimited JSON reads.
func NewFrameReader(r io.Reader) *FrameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &FrameReader{scanner: scanner}
}

// ReadFrame decodes the next line into v. It returns io.EOF when the
// stream is exhausted.
func (f *FrameReader) ReadFrame(v any) error {
	if !f.scanner.Scan() {
		if err := f.scanner.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	return json.Unmarshal(f.scanner.Bytes(), v)
}
