package cd11

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// Checksum computes the comm verification value of an encoded frame. The
// last eight bytes, where the value itself lives, are treated as zero.
func Checksum(frame []byte) uint64 {
	if len(frame) < 8 {
		return crc64.Checksum(frame, crcTable)
	}
	crc := crc64.Update(0, crcTable, frame[:len(frame)-8])
	var zero [8]byte
	return crc64.Update(crc, crcTable, zero[:])
}

// Decoder turns buffers into frames. The zero value skips CRC checks.
type Decoder struct {
	verifyCRC bool
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithCRCVerification makes Decode reject frames whose comm verification
// value does not match their contents.
func WithCRCVerification(enabled bool) DecoderOption {
	return func(d *Decoder) { d.verifyCRC = enabled }
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decodes exactly one frame from buf. It never panics; every failure
// is returned as a malformed result holding a copy of buf.
func (d *Decoder) Decode(buf []byte) (res FrameOrMalformed) {
	raw := append([]byte(nil), buf...)
	defer func() {
		if p := recover(); p != nil {
			res = OfMalformed(&MalformedFrame{
				Raw:   raw,
				Cause: &DecodeError{Stage: StagePayload, Err: fmt.Errorf("recovered panic: %v", p)},
			})
		}
	}()

	f, err := d.decode(raw)
	if err != nil {
		return OfMalformed(&MalformedFrame{Raw: raw, Cause: err})
	}
	f.Raw = raw
	return OfFrame(f)
}

func (d *Decoder) decode(buf []byte) (*Frame, error) {
	if len(buf) < HeaderLength+trailerFixed {
		return nil, &DecodeError{Stage: StageHeader, Offset: len(buf),
			Err: fmt.Errorf("%w: %d bytes is shorter than an empty frame", ErrTruncated, len(buf))}
	}

	h, err := decodeHeader(newReader(buf[:HeaderLength]))
	if err != nil {
		return nil, &DecodeError{Stage: StageHeader, Err: err}
	}
	if _, err := FromCode(h.FrameType.Code()); err != nil {
		return nil, &DecodeError{Stage: StageFrameType, Err: err}
	}
	trailerAt := int(h.TrailerOffset)
	if trailerAt < HeaderLength || trailerAt > len(buf)-trailerFixed {
		return nil, &DecodeError{Stage: StageHeader, Offset: 4,
			Err: fmt.Errorf("%w: trailer offset %d in %d byte frame", ErrFieldLength, trailerAt, len(buf))}
	}

	payload, err := newPayload(h.FrameType)
	if err != nil {
		return nil, &DecodeError{Stage: StageFrameType, Err: err}
	}
	pr := newReader(buf[HeaderLength:trailerAt])
	payload.decode(pr)
	if pr.err == nil && pr.remaining() != 0 {
		pr.fail(fmt.Errorf("%w: %d unread payload bytes", ErrFieldLength, pr.remaining()))
	}
	if pr.err != nil {
		return nil, &DecodeError{Stage: StagePayload, Offset: HeaderLength + pr.off, Err: pr.err}
	}

	tr := newReader(buf[trailerAt:])
	t := Trailer{AuthKeyID: tr.int32()}
	t.AuthValue = tr.padded(tr.length())
	t.CommVerification = tr.uint64()
	if tr.err == nil && tr.remaining() != 0 {
		tr.fail(fmt.Errorf("%w: %d bytes", ErrTrailingBytes, tr.remaining()))
	}
	if tr.err != nil {
		return nil, &DecodeError{Stage: StageTrailer, Offset: trailerAt + tr.off, Err: tr.err}
	}

	if d.verifyCRC {
		if want := Checksum(buf); want != t.CommVerification {
			return nil, &DecodeError{Stage: StageChecksum, Offset: len(buf) - 8,
				Err: fmt.Errorf("%w: got %#016x, computed %#016x", ErrChecksum, t.CommVerification, want)}
		}
	}

	return &Frame{Header: h, Payload: payload, Trailer: t}, nil
}

// Encode serialises f. The trailer offset and comm verification value are
// computed; the corresponding fields of f are ignored and left untouched.
func Encode(f *Frame) ([]byte, error) {
	if f == nil || f.Payload == nil {
		return nil, fmt.Errorf("%w: frame has no payload", ErrTypeMismatch)
	}
	if f.Header.FrameType != f.Payload.FrameType() {
		return nil, fmt.Errorf("%w: header %s, payload %s", ErrTypeMismatch, f.Header.FrameType, f.Payload.FrameType())
	}

	var body writer
	f.Payload.encode(&body)

	h := f.Header
	h.TrailerOffset = int32(HeaderLength + len(body.bytes()))

	w := writer{buf: make([]byte, 0, HeaderLength+len(body.bytes())+trailerFixed+pad4(len(f.Trailer.AuthValue)))}
	h.encode(&w)
	w.buf = append(w.buf, body.bytes()...)
	w.int32(f.Trailer.AuthKeyID)
	w.sized(f.Trailer.AuthValue)
	w.uint64(0)

	out := w.bytes()
	binary.BigEndian.PutUint64(out[len(out)-8:], Checksum(out))
	return out, nil
}
