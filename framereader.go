package aerostat

import (
	"bytes"
	"context"
	"io"
)

const readChunkSize = 256

// FrameReader splits a byte stream into lines. Bytes arriving in fragments
// are held until a line feed is seen. A read returning no data and no error,
// as a serial port does on a read timeout, is not an error.
type FrameReader struct {
	r       io.Reader
	pending []byte
	chunk   []byte
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:     r,
		chunk: make([]byte, readChunkSize),
	}
}

// ReadLine blocks until a complete line is available and returns it without
// the trailing CR/LF. At end of stream any unterminated bytes are returned
// as a final line before io.EOF. Other read errors are returned as a
// *TransportError. The context is checked between reads.
func (fr *FrameReader) ReadLine(ctx context.Context) (string, error) {
	for {
		if line, ok := fr.popLine(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			fr.pending = append(fr.pending, fr.chunk[:n]...)
		}
		if err == io.EOF {
			if line, ok := fr.popLine(); ok {
				return line, nil
			}
			if len(fr.pending) > 0 {
				line := string(bytes.TrimRight(fr.pending, "\r"))
				fr.pending = fr.pending[:0]
				return line, nil
			}
			return "", io.EOF
		}
		if err != nil {
			return "", &TransportError{Op: "read", Err: err}
		}
	}
}

func (fr *FrameReader) popLine() (string, bool) {
	i := bytes.IndexByte(fr.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(bytes.TrimRight(fr.pending[:i], "\r"))
	// shift so the backing array is reused
	rest := copy(fr.pending, fr.pending[i+1:])
	fr.pending = fr.pending[:rest]
	return line, true
}
