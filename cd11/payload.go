package cd11

import (
	"fmt"
	"net/netip"
	"time"
)

// Payload is the body of a frame. The set of implementations is closed:
// each registered FrameType has exactly one payload type.
type Payload interface {
	FrameType() FrameType
	decode(r *reader)
	encode(w *writer)
}

// newPayload returns an empty payload of the shape registered for t.
func newPayload(t FrameType) (Payload, error) {
	switch t {
	case ConnectionRequestType:
		return &ConnectionRequest{}, nil
	case ConnectionResponseType:
		return &ConnectionResponse{}, nil
	case OptionRequestType:
		return &OptionRequest{}, nil
	case OptionResponseType:
		return &OptionResponse{}, nil
	case DataType:
		return &DataFrame{}, nil
	case AcknackType:
		return &Acknack{}, nil
	case AlertType:
		return &Alert{}, nil
	case CommandRequestType:
		return &CommandRequest{}, nil
	case CommandResponseType:
		return &CommandResponse{}, nil
	case CD1EncapsulationType:
		return &CD1Encapsulation{}, nil
	case CustomResetType:
		return &CustomReset{}, nil
	default:
		return nil, fmt.Errorf("%w: code %d", ErrUnknownFrameType, t.Code())
	}
}

// Field widths shared by several payloads.
const (
	StationNameLength = 8
	StationTypeLength = 4
	ServiceTypeLength = 4
	SiteLength        = 5
	ChannelLength     = 3
	LocationLength    = 2
)

// Endpoint is an IPv4 address and port advertised during connection setup.
// A zero Addr is sent as 0.0.0.0.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (r *reader) endpoint() Endpoint {
	ip := r.uint32()
	port := r.uint16()
	return Endpoint{
		Addr: netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)}),
		Port: port,
	}
}

func (w *writer) endpoint(e Endpoint) {
	var a [4]byte
	if e.Addr.Is4() {
		a = e.Addr.As4()
	}
	w.uint32(uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3]))
	w.uint16(e.Port)
}

// ConnectionFields is the layout shared by connection requests and responses.
type ConnectionFields struct {
	MajorVersion uint16
	MinorVersion uint16
	Name         string
	Type         string
	ServiceType  string
	Primary      Endpoint
	Secondary    Endpoint
}

func (c *ConnectionFields) decode(r *reader) {
	c.MajorVersion = r.uint16()
	c.MinorVersion = r.uint16()
	c.Name = r.text(StationNameLength)
	c.Type = r.text(StationTypeLength)
	c.ServiceType = r.text(ServiceTypeLength)
	c.Primary = r.endpoint()
	c.Secondary = r.endpoint()
}

func (c *ConnectionFields) encode(w *writer) {
	w.uint16(c.MajorVersion)
	w.uint16(c.MinorVersion)
	w.text(c.Name, StationNameLength)
	w.text(c.Type, StationTypeLength)
	w.text(c.ServiceType, ServiceTypeLength)
	w.endpoint(c.Primary)
	w.endpoint(c.Secondary)
}

// ConnectionRequest is sent by a station to open a session. Name and Type
// identify the requesting station.
type ConnectionRequest struct{ ConnectionFields }

// FrameType implements Payload.
func (*ConnectionRequest) FrameType() FrameType { return ConnectionRequestType }

// ConnectionResponse tells the station where to send data. Primary is the
// endpoint of the data consumer.
type ConnectionResponse struct{ ConnectionFields }

// FrameType implements Payload.
func (*ConnectionResponse) FrameType() FrameType { return ConnectionResponseType }

// Option is one entry of an option request or response.
type Option struct {
	Type  int32
	Value []byte
}

type optionList []Option

func (l *optionList) decode(r *reader) {
	n := int(r.int32())
	if r.err != nil {
		return
	}
	// each option needs at least its two int32 fields
	if n < 0 || n*8 > r.remaining() {
		r.fail(fmt.Errorf("%w: option count %d", ErrFieldLength, n))
		return
	}
	opts := make([]Option, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		typ := r.int32()
		size := r.length()
		opts = append(opts, Option{Type: typ, Value: r.padded(size)})
	}
	*l = opts
}

func (l optionList) encode(w *writer) {
	w.int32(int32(len(l)))
	for _, o := range l {
		w.int32(o.Type)
		w.sized(o.Value)
	}
}

// OptionRequest negotiates session options.
type OptionRequest struct {
	Options []Option
}

// FrameType implements Payload.
func (*OptionRequest) FrameType() FrameType { return OptionRequestType }

func (p *OptionRequest) decode(r *reader) { (*optionList)(&p.Options).decode(r) }
func (p *OptionRequest) encode(w *writer) { optionList(p.Options).encode(w) }

// OptionResponse answers an OptionRequest.
type OptionResponse struct {
	Options []Option
}

// FrameType implements Payload.
func (*OptionResponse) FrameType() FrameType { return OptionResponseType }

func (p *OptionResponse) decode(r *reader) { (*optionList)(&p.Options).decode(r) }
func (p *OptionResponse) encode(w *writer) { optionList(p.Options).encode(w) }

// FramesetLength is the width of the frame set name in an acknack.
const FramesetLength = 20

// Gap is a closed range of sequence numbers that were not received.
type Gap struct {
	Start int64
	End   int64
}

// Acknack reports which sequence numbers of a frame set have arrived.
type Acknack struct {
	Frameset        string
	LowestSequence  int64
	HighestSequence int64
	Gaps            []Gap
}

// FrameType implements Payload.
func (*Acknack) FrameType() FrameType { return AcknackType }

func (p *Acknack) decode(r *reader) {
	p.Frameset = r.text(FramesetLength)
	p.LowestSequence = r.int64()
	p.HighestSequence = r.int64()
	n := int(r.int32())
	if r.err != nil {
		return
	}
	if n < 0 || n*16 > r.remaining() {
		r.fail(fmt.Errorf("%w: gap count %d", ErrFieldLength, n))
		return
	}
	p.Gaps = make([]Gap, n)
	for i := range p.Gaps {
		p.Gaps[i] = Gap{Start: r.int64(), End: r.int64()}
	}
}

func (p *Acknack) encode(w *writer) {
	w.text(p.Frameset, FramesetLength)
	w.int64(p.LowestSequence)
	w.int64(p.HighestSequence)
	w.int32(int32(len(p.Gaps)))
	for _, g := range p.Gaps {
		w.int64(g.Start)
		w.int64(g.End)
	}
}

// Alert carries a free text notice, typically announcing shutdown.
type Alert struct {
	Message string
}

// FrameType implements Payload.
func (*Alert) FrameType() FrameType { return AlertType }

func (p *Alert) decode(r *reader) { p.Message = string(r.padded(r.length())) }
func (p *Alert) encode(w *writer) { w.sized([]byte(p.Message)) }

// ChannelID names a site, channel and location triple.
type ChannelID struct {
	Site     string
	Channel  string
	Location string
}

// String renders the id as site.channel.location, omitting an empty location.
func (c ChannelID) String() string {
	if c.Location == "" {
		return c.Site + "." + c.Channel
	}
	return c.Site + "." + c.Channel + "." + c.Location
}

func (r *reader) channelID() ChannelID {
	return ChannelID{
		Site:     r.text(SiteLength),
		Channel:  r.text(ChannelLength),
		Location: r.text(LocationLength),
	}
}

func (w *writer) channelID(c ChannelID) {
	w.text(c.Site, SiteLength)
	w.text(c.Channel, ChannelLength)
	w.text(c.Location, LocationLength)
}

// CommandRequest asks a station to run a command.
type CommandRequest struct {
	Station   string
	Target    ChannelID
	Timestamp time.Time
	Command   string
}

// FrameType implements Payload.
func (*CommandRequest) FrameType() FrameType { return CommandRequestType }

func (p *CommandRequest) decode(r *reader) {
	p.Station = r.text(StationNameLength)
	p.Target = r.channelID()
	r.next(2)
	p.Timestamp = r.timestamp()
	p.Command = string(r.padded(r.length()))
}

func (p *CommandRequest) encode(w *writer) {
	w.text(p.Station, StationNameLength)
	w.channelID(p.Target)
	w.uint16(0)
	w.timestamp(p.Timestamp)
	w.sized([]byte(p.Command))
}

// CommandResponse returns the outcome of a CommandRequest.
type CommandResponse struct {
	Responder string
	Target    ChannelID
	Timestamp time.Time
	Request   string
	Response  string
}

// FrameType implements Payload.
func (*CommandResponse) FrameType() FrameType { return CommandResponseType }

func (p *CommandResponse) decode(r *reader) {
	p.Responder = r.text(StationNameLength)
	p.Target = r.channelID()
	r.next(2)
	p.Timestamp = r.timestamp()
	p.Request = string(r.padded(r.length()))
	p.Response = string(r.padded(r.length()))
}

func (p *CommandResponse) encode(w *writer) {
	w.text(p.Responder, StationNameLength)
	w.channelID(p.Target)
	w.uint16(0)
	w.timestamp(p.Timestamp)
	w.sized([]byte(p.Request))
	w.sized([]byte(p.Response))
}

func decodeOpaque(r *reader) []byte {
	return append([]byte(nil), r.next(r.remaining())...)
}

// CD1Encapsulation wraps a legacy CD-1 frame. The body is kept as received.
type CD1Encapsulation struct {
	Body []byte
}

// FrameType implements Payload.
func (*CD1Encapsulation) FrameType() FrameType { return CD1EncapsulationType }

func (p *CD1Encapsulation) decode(r *reader) { p.Body = decodeOpaque(r) }
func (p *CD1Encapsulation) encode(w *writer) { w.buf = append(w.buf, p.Body...) }

// CustomReset asks the receiver to reset its frame set state.
type CustomReset struct {
	Body []byte
}

// FrameType implements Payload.
func (*CustomReset) FrameType() FrameType { return CustomResetType }

func (p *CustomReset) decode(r *reader) { p.Body = decodeOpaque(r) }
func (p *CustomReset) encode(w *writer) { w.buf = append(w.buf, p.Body...) }
