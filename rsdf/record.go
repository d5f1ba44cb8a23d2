// Package rsdf turns raw station data frames into state-of-health extracts
// and publishes them with their individual environmental issues.
package rsdf

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/soh"
)

// PayloadFormat identifies the encoding of RawStationDataFrame.RawPayload.
type PayloadFormat string

// FormatCD11 marks a payload holding one complete encoded CD-1.1 frame.
const FormatCD11 PayloadFormat = "CD11"

// AuthenticationStatus records what was known about a frame's signature
// when it was received.
type AuthenticationStatus string

// Authentication states.
const (
	AuthNotApplicable  AuthenticationStatus = "NOT_APPLICABLE"
	AuthNotYetVerified AuthenticationStatus = "NOT_YET_AUTHENTICATED"
)

// RawStationDataFrame is one station data frame as received, before any
// state-of-health extraction.
type RawStationDataFrame struct {
	ID             string               `cbor:"1,keyasint" json:"id"`
	StationName    string               `cbor:"2,keyasint" json:"stationName"`
	Format         PayloadFormat        `cbor:"3,keyasint" json:"payloadFormat"`
	ReceptionTime  time.Time            `cbor:"4,keyasint" json:"receptionTime"`
	PayloadStart   time.Time            `cbor:"5,keyasint" json:"payloadStartTime"`
	PayloadEnd     time.Time            `cbor:"6,keyasint" json:"payloadEndTime"`
	Authentication AuthenticationStatus `cbor:"7,keyasint" json:"authenticationStatus"`
	RawPayload     []byte               `cbor:"8,keyasint" json:"rawPayload"`
}

// NewRawStationDataFrame wraps an encoded frame received from station at
// receivedAt. The payload is copied.
func NewRawStationDataFrame(station string, raw []byte, start, end, receivedAt time.Time) RawStationDataFrame {
	return RawStationDataFrame{
		ID:             uuid.NewString(),
		StationName:    station,
		Format:         FormatCD11,
		ReceptionTime:  receivedAt.UTC(),
		PayloadStart:   start.UTC(),
		PayloadEnd:     end.UTC(),
		Authentication: AuthNotYetVerified,
		RawPayload:     append([]byte(nil), raw...),
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeRawFrame serializes a raw frame record for the bus.
func EncodeRawFrame(f RawStationDataFrame) ([]byte, error) {
	b, err := encMode.Marshal(f)
	if err != nil {
		return nil, errors.WrapInvalid(err, "rsdf", "EncodeRawFrame", "marshal cbor")
	}
	return b, nil
}

// DecodeRawFrame parses a record written by EncodeRawFrame.
func DecodeRawFrame(b []byte) (RawStationDataFrame, error) {
	var f RawStationDataFrame
	if err := decMode.Unmarshal(b, &f); err != nil {
		return RawStationDataFrame{}, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrParsingFailed, err), "rsdf", "DecodeRawFrame", "unmarshal cbor")
	}
	if f.ID == "" {
		return RawStationDataFrame{}, errors.WrapInvalid(
			fmt.Errorf("%w: raw frame without id", errors.ErrInvalidData), "rsdf", "DecodeRawFrame", "validate")
	}
	return f, nil
}

// SohExtract is everything a parser derived from one raw frame.
type SohExtract struct {
	ID          string                          `json:"id"`
	RawFrameID  string                          `json:"rawStationDataFrameId"`
	StationName string                          `json:"stationName"`
	Booleans    []soh.EnvironmentalIssueBoolean `json:"booleanIssues"`
	Analogs     []soh.EnvironmentalIssueAnalog  `json:"analogIssues"`
}

// IssueCount is the number of issues carried by the extract.
func (e SohExtract) IssueCount() int { return len(e.Booleans) + len(e.Analogs) }

// IssueRecord is one issue published on its own. Exactly one field is set.
type IssueRecord struct {
	Boolean *soh.EnvironmentalIssueBoolean `json:"boolean,omitempty"`
	Analog  *soh.EnvironmentalIssueAnalog  `json:"analog,omitempty"`
}

// Issues splits the extract into one record per issue, booleans first.
func (e SohExtract) Issues() []IssueRecord {
	out := make([]IssueRecord, 0, e.IssueCount())
	for i := range e.Booleans {
		out = append(out, IssueRecord{Boolean: &e.Booleans[i]})
	}
	for i := range e.Analogs {
		out = append(out, IssueRecord{Analog: &e.Analogs[i]})
	}
	return out
}

func marshal(v any, op string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(err, "rsdf", op, "marshal json")
	}
	return b, nil
}
