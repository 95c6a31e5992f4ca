// Package codec implements the length-delimited frame stream and the two
// packet codecs (control and data) that ride on it (spec §4.1, §6).
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameLength bounds a single frame's payload so a corrupt length
// header cannot make the reader allocate unbounded memory.
const maxFrameLength = 64 * 1024 * 1024

// Framer reads and writes length-delimited frames: a big-endian uint32
// length followed by that many payload bytes. It is the only thing that
// appears on the wire at the transport level (§4.1).
type Framer struct {
	r *bufio.Reader
	w io.Writer
}

// defaultFramerBufSize matches bufio's own default, used when a caller
// has no more specific buffer-size tunable to honor.
const defaultFramerBufSize = 4096

// NewFramer wraps rw for framed reads and writes using the default read
// buffer size.
func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerSize(rw, defaultFramerBufSize)
}

// NewFramerSize wraps rw for framed reads and writes with an explicit read
// buffer size, so a caller holding a configured relay buffer size (§4.5.3)
// can size the framer's underlying bufio.Reader to match.
func NewFramerSize(rw io.ReadWriter, size int) *Framer {
	return &Framer{r: bufio.NewReaderSize(rw, size), w: rw}
}

// ReadFrame blocks until one full frame has been read, or returns an error
// (io.EOF on a clean close, ErrShortFrame/ErrFrameTooLarge on corruption).
func (f *Framer) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > maxFrameLength {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: %v", ErrShortFrame, err)
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one length-delimited frame.
func (f *Framer) WriteFrame(payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := f.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := f.w.Write(payload)
	return err
}

// Buffered returns the bytes already read into the framer's internal
// buffer but not yet consumed as a frame, so a codec can be unwrapped
// mid-stream without losing data the peer already sent (§4.3.4, §4.5.1).
func (f *Framer) Buffered() []byte {
	n := f.r.Buffered()
	if n == 0 {
		return nil
	}
	b, _ := f.r.Peek(n)
	out := make([]byte, n)
	copy(out, b)
	return out
}
