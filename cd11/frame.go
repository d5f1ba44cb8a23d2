package cd11

// HeaderLength is the size of the fixed frame header.
const HeaderLength = 36

// Fixed widths of the header's name fields.
const (
	CreatorLength     = 8
	DestinationLength = 8
)

// trailerFixed is the trailer size without the authentication value:
// key id, auth size and the comm verification value.
const trailerFixed = 4 + 4 + 8

// Header is the fixed frame header.
type Header struct {
	FrameType FrameType
	// TrailerOffset is the byte offset of the trailer from the start of the
	// frame. Set by Encode.
	TrailerOffset  int32
	Creator        string
	Destination    string
	SequenceNumber int64
	Series         int32
}

// Trailer carries the frame signature and the comm verification value.
type Trailer struct {
	AuthKeyID        int32
	AuthValue        []byte
	CommVerification uint64
}

// Frame is one decoded CD-1.1 protocol unit. Frames returned by Decode are
// not modified afterwards.
type Frame struct {
	Header  Header
	Payload Payload
	Trailer Trailer
	// Raw holds the bytes the frame was decoded from, padding and comm
	// verification included. It is nil for frames built locally and is
	// ignored by Encode.
	Raw []byte
}

// Type returns the frame type from the header.
func (f *Frame) Type() FrameType { return f.Header.FrameType }

// NewFrame builds an outbound frame whose header type matches payload.
func NewFrame(creator, destination string, sequence int64, payload Payload) *Frame {
	return &Frame{
		Header: Header{
			FrameType:      payload.FrameType(),
			Creator:        creator,
			Destination:    destination,
			SequenceNumber: sequence,
		},
		Payload: payload,
	}
}

// MalformedFrame holds bytes that failed to decode and the reason.
type MalformedFrame struct {
	Raw   []byte
	Cause error
}

// PartialHeader decodes as much of the header as the raw bytes allow. It is
// a diagnostic aid for logging malformed input.
func (m *MalformedFrame) PartialHeader() (Header, bool) {
	if len(m.Raw) < HeaderLength {
		return Header{}, false
	}
	h, err := decodeHeader(newReader(m.Raw))
	return h, err == nil
}

func decodeHeader(r *reader) (Header, error) {
	h := Header{
		FrameType:      FrameType(r.int32()),
		TrailerOffset:  r.int32(),
		Creator:        r.text(CreatorLength),
		Destination:    r.text(DestinationLength),
		SequenceNumber: r.int64(),
		Series:         r.int32(),
	}
	return h, r.err
}

func (h Header) encode(w *writer) {
	w.int32(h.FrameType.Code())
	w.int32(h.TrailerOffset)
	w.text(h.Creator, CreatorLength)
	w.text(h.Destination, DestinationLength)
	w.int64(h.SequenceNumber)
	w.int32(h.Series)
}
