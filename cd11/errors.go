package cd11

import (
	"fmt"

	"github.com/seisnet/cd11streams/errors"
)

// Decode failure causes. Each wraps errors.ErrInvalidData or
// errors.ErrChecksumFailed so callers can classify them.
var (
	ErrUnknownFrameType = fmt.Errorf("unknown frame type: %w", errors.ErrInvalidData)
	ErrTruncated        = fmt.Errorf("truncated frame: %w", errors.ErrInvalidData)
	ErrFieldLength      = fmt.Errorf("invalid field length: %w", errors.ErrInvalidData)
	ErrTrailingBytes    = fmt.Errorf("trailing bytes after trailer: %w", errors.ErrInvalidData)
	ErrBadTime          = fmt.Errorf("invalid CD-1.1 time: %w", errors.ErrInvalidData)
	ErrChecksum         = fmt.Errorf("comm verification mismatch: %w", errors.ErrChecksumFailed)
	ErrTypeMismatch     = fmt.Errorf("payload does not match frame type: %w", errors.ErrInvalidData)
)

// Stage names the part of a frame being decoded when a failure occurred.
type Stage string

// Decode stages.
const (
	StageHeader    Stage = "header"
	StageFrameType Stage = "frame type"
	StagePayload   Stage = "payload"
	StageTrailer   Stage = "trailer"
	StageChecksum  Stage = "checksum"
)

// DecodeError is the cause carried by a MalformedFrame.
type DecodeError struct {
	Stage  Stage
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cd11: decode %s at offset %d: %v", e.Stage, e.Offset, e.Err)
}

// Unwrap exposes the underlying cause and marks every decode failure as a
// parsing failure.
func (e *DecodeError) Unwrap() []error {
	return []error{e.Err, errors.ErrParsingFailed}
}
