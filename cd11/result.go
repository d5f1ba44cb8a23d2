package cd11

import "fmt"

// Kind discriminates a FrameOrMalformed.
type Kind int

// Result kinds. The zero Kind means the value was never set.
const (
	KindFrame Kind = iota + 1
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "frame"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// FrameOrMalformed is the result of decoding one buffer. Exactly one of the
// two variants is set. Check Kind, or use AsFrame/AsMalformed, before
// unwrapping.
type FrameOrMalformed struct {
	frame     *Frame
	malformed *MalformedFrame
}

// OfFrame wraps a decoded frame.
func OfFrame(f *Frame) FrameOrMalformed {
	if f == nil {
		panic("cd11: OfFrame called with nil frame")
	}
	return FrameOrMalformed{frame: f}
}

// OfMalformed wraps a decode failure.
func OfMalformed(m *MalformedFrame) FrameOrMalformed {
	if m == nil {
		panic("cd11: OfMalformed called with nil malformed frame")
	}
	return FrameOrMalformed{malformed: m}
}

// Kind reports which variant is set.
func (r FrameOrMalformed) Kind() Kind {
	switch {
	case r.frame != nil:
		return KindFrame
	case r.malformed != nil:
		return KindMalformed
	default:
		return 0
	}
}

// Frame returns the decoded frame. It panics if Kind is not KindFrame.
func (r FrameOrMalformed) Frame() *Frame {
	if r.frame == nil {
		panic(fmt.Sprintf("cd11: Frame called on %s result", r.Kind()))
	}
	return r.frame
}

// Malformed returns the decode failure. It panics if Kind is not KindMalformed.
func (r FrameOrMalformed) Malformed() *MalformedFrame {
	if r.malformed == nil {
		panic(fmt.Sprintf("cd11: Malformed called on %s result", r.Kind()))
	}
	return r.malformed
}

// AsFrame returns the frame and true if Kind is KindFrame.
func (r FrameOrMalformed) AsFrame() (*Frame, bool) {
	return r.frame, r.frame != nil
}

// AsMalformed returns the decode failure and true if Kind is KindMalformed.
func (r FrameOrMalformed) AsMalformed() (*MalformedFrame, bool) {
	return r.malformed, r.malformed != nil
}
