package cd11

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/seisnet/cd11streams/errors"
)

// DefaultMaxFrameSize bounds frames accepted by FrameReader.
const DefaultMaxFrameSize = 4 << 20

// FrameReader cuts a byte stream into buffers holding one frame each, using
// the lengths in the header and trailer. It does not interpret the payload.
type FrameReader struct {
	r   *bufio.Reader
	max int
}

// NewFrameReader reads frames from r. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxFrameSize int) *FrameReader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: bufio.NewReaderSize(r, 64<<10), max: maxFrameSize}
}

// Next returns the next frame's bytes. It returns io.EOF at a clean frame
// boundary, io.ErrUnexpectedEOF mid frame, and an error wrapping
// errors.ErrFrameSync when a length field cannot belong to a valid frame;
// the stream cannot be resynchronised after that.
func (fr *FrameReader) Next() ([]byte, error) {
	head := make([]byte, HeaderLength)
	if _, err := io.ReadFull(fr.r, head); err != nil {
		return nil, err
	}

	trailerAt := int(int32(binary.BigEndian.Uint32(head[4:8])))
	if trailerAt < HeaderLength || trailerAt > fr.max-trailerFixed {
		return nil, fmt.Errorf("%w: trailer offset %d (max frame %d)", errors.ErrFrameSync, trailerAt, fr.max)
	}

	frame := make([]byte, trailerAt+8)
	copy(frame, head)
	if _, err := io.ReadFull(fr.r, frame[HeaderLength:]); err != nil {
		return nil, unexpected(err)
	}

	authSize := int(int32(binary.BigEndian.Uint32(frame[trailerAt+4:])))
	if authSize < 0 {
		return nil, fmt.Errorf("%w: negative authentication size %d", errors.ErrFrameSync, authSize)
	}
	total := trailerAt + trailerFixed + pad4(authSize)
	if total > fr.max {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", errors.ErrFrameSync, total, fr.max)
	}

	rest := make([]byte, total-len(frame))
	if _, err := io.ReadFull(fr.r, rest); err != nil {
		return nil, unexpected(err)
	}
	return append(frame, rest...), nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
