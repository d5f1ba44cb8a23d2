package cd11

import (
	"fmt"
	"time"
)

// channelNameLength is the width of one entry in the data frame channel string.
const channelNameLength = SiteLength + ChannelLength + LocationLength

// DataFrame carries one time slice of data for a set of channels.
type DataFrame struct {
	// FrameTimeLength is the span covered by the frame.
	FrameTimeLength time.Duration
	NominalTime     time.Time
	Subframes       []ChannelSubframe
}

// FrameType implements Payload.
func (*DataFrame) FrameType() FrameType { return DataType }

// ChannelSubframe holds the samples and status of one channel.
type ChannelSubframe struct {
	Authenticated     bool
	Transform         uint8
	SensorType        uint8
	OptionFlag        uint8
	Channel           ChannelID
	DataType          string
	CalibrationFactor float32
	CalibrationPeriod float32
	Timestamp         time.Time
	TimeLength        time.Duration
	Samples           int32
	// Status is the raw channel status block; see ParseChannelStatus.
	Status    []byte
	Data      []byte
	AuthKeyID int32
	AuthValue []byte
}

// End returns the time just after the last sample of the subframe.
func (s *ChannelSubframe) End() time.Time {
	return s.Timestamp.Add(s.TimeLength)
}

func (p *DataFrame) decode(r *reader) {
	n := int(r.int32())
	p.FrameTimeLength = time.Duration(r.int32()) * time.Millisecond
	p.NominalTime = r.timestamp()
	names := r.padded(r.length())
	if r.err != nil {
		return
	}
	if n < 0 || len(names) != n*channelNameLength {
		r.fail(fmt.Errorf("%w: channel string of %d bytes for %d channels", ErrFieldLength, len(names), n))
		return
	}

	p.Subframes = make([]ChannelSubframe, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		size := r.length()
		body := r.next(size)
		if r.err != nil {
			return
		}
		var sf ChannelSubframe
		sub := newReader(body)
		sf.decode(sub)
		if sub.err == nil && sub.remaining() != 0 {
			sub.fail(fmt.Errorf("%w: %d unread bytes in subframe %d", ErrFieldLength, sub.remaining(), i))
		}
		if sub.err != nil {
			r.fail(fmt.Errorf("subframe %d: %w", i, sub.err))
			return
		}
		p.Subframes = append(p.Subframes, sf)
	}
}

func (p *DataFrame) encode(w *writer) {
	w.int32(int32(len(p.Subframes)))
	w.int32(int32(p.FrameTimeLength / time.Millisecond))
	w.timestamp(p.NominalTime)

	var names writer
	for i := range p.Subframes {
		names.channelID(p.Subframes[i].Channel)
	}
	w.sized(names.bytes())

	for i := range p.Subframes {
		var body writer
		p.Subframes[i].encode(&body)
		w.int32(int32(len(body.bytes())))
		w.buf = append(w.buf, body.bytes()...)
	}
}

func (s *ChannelSubframe) decode(r *reader) {
	r.int32() // authentication offset
	s.Authenticated = r.uint8() != 0
	s.Transform = r.uint8()
	s.SensorType = r.uint8()
	s.OptionFlag = r.uint8()
	s.Channel = r.channelID()
	s.DataType = r.text(2)
	s.CalibrationFactor = r.float32()
	s.CalibrationPeriod = r.float32()
	s.Timestamp = r.timestamp()
	s.TimeLength = time.Duration(r.int32()) * time.Millisecond
	s.Samples = r.int32()
	s.Status = r.padded(r.length())
	s.Data = r.padded(r.length())
	s.AuthKeyID = r.int32()
	s.AuthValue = r.padded(r.length())
}

func (s *ChannelSubframe) encode(w *writer) {
	var body writer
	body.uint8(boolByte(s.Authenticated))
	body.uint8(s.Transform)
	body.uint8(s.SensorType)
	body.uint8(s.OptionFlag)
	body.channelID(s.Channel)
	body.text(s.DataType, 2)
	body.float32(s.CalibrationFactor)
	body.float32(s.CalibrationPeriod)
	body.timestamp(s.Timestamp)
	body.int32(int32(s.TimeLength / time.Millisecond))
	body.int32(s.Samples)
	body.sized(s.Status)
	body.sized(s.Data)

	// offset counted from the start of the subframe, after the length field
	w.int32(int32(4 + len(body.bytes())))
	w.buf = append(w.buf, body.bytes()...)
	w.int32(s.AuthKeyID)
	w.sized(s.AuthValue)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
