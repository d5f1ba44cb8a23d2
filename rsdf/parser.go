package rsdf

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/soh"
)

// Parser derives a state-of-health extract from a raw frame.
type Parser interface {
	Parse(ctx context.Context, f RawStationDataFrame) (SohExtract, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, f RawStationDataFrame) (SohExtract, error)

// Parse implements Parser.
func (fn ParserFunc) Parse(ctx context.Context, f RawStationDataFrame) (SohExtract, error) {
	return fn(ctx, f)
}

// StatusParser reads the channel status blocks of a CD-1.1 data frame.
// Every status flag becomes a boolean issue spanning the subframe, and the
// clock differential becomes an analog issue in microseconds.
type StatusParser struct {
	decoder *cd11.Decoder
}

// NewStatusParser creates a parser. CRC verification follows verifyCRC.
func NewStatusParser(verifyCRC bool) *StatusParser {
	return &StatusParser{decoder: cd11.NewDecoder(cd11.WithCRCVerification(verifyCRC))}
}

// Parse implements Parser.
func (p *StatusParser) Parse(_ context.Context, raw RawStationDataFrame) (SohExtract, error) {
	if raw.Format != FormatCD11 {
		return SohExtract{}, errors.WrapInvalid(
			fmt.Errorf("%w: payload format %q", errors.ErrInvalidData, raw.Format), "StatusParser", "Parse", "check format")
	}

	res := p.decoder.Decode(raw.RawPayload)
	frame, ok := res.AsFrame()
	if !ok {
		return SohExtract{}, errors.WrapInvalid(res.Malformed().Cause, "StatusParser", "Parse", "decode frame")
	}
	data, ok := frame.Payload.(*cd11.DataFrame)
	if !ok {
		return SohExtract{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s frame carries no channel status", errors.ErrInvalidData, frame.Type()), "StatusParser", "Parse", "check frame type")
	}

	extract := SohExtract{
		ID:          uuid.NewString(),
		RawFrameID:  raw.ID,
		StationName: raw.StationName,
	}
	for i := range data.Subframes {
		sub := &data.Subframes[i]
		if len(sub.Status) == 0 {
			continue
		}
		status, err := cd11.ParseChannelStatus(sub.Status)
		if err != nil {
			return SohExtract{}, errors.WrapInvalid(err, "StatusParser", "Parse", "parse status of "+sub.Channel.String())
		}
		if err := appendIssues(&extract, sub.Channel.String(), sub, status); err != nil {
			return SohExtract{}, err
		}
	}
	return extract, nil
}

func appendIssues(e *SohExtract, channel string, sub *cd11.ChannelSubframe, s cd11.ChannelStatus) error {
	start, end := sub.Timestamp, sub.End()
	flags := []struct {
		typ soh.IssueType
		set bool
	}{
		{soh.DeadSensorChannel, s.DeadSensorChannel},
		{soh.ZeroedData, s.ZeroedData},
		{soh.Clipped, s.Clipped},
		{soh.CalibrationUnderway, s.CalibrationUnderway},
		{soh.EquipmentHousingOpen, s.EquipmentHousingOpen},
		{soh.DigitizingEquipmentOpen, s.DigitizingEquipmentOpen},
		{soh.VaultDoorOpened, s.VaultDoorOpened},
		{soh.AuthenticationSealBroken, s.AuthenticationSealBroken},
		{soh.EquipmentMoved, s.EquipmentMoved},
		{soh.ClockDifferentialTooLarge, s.ClockDifferentialTooLarge},
		{soh.GPSReceiverOff, s.GPSReceiverOff},
		{soh.GPSReceiverUnlocked, s.GPSReceiverUnlocked},
		{soh.DigitizerAnalogInputShorted, s.DigitizerAnalogInputShorted},
		{soh.DigitizerCalibrationLoopBack, s.DigitizerCalibrationLoopBack},
		{soh.MainPowerFailure, s.MainPowerFailure},
		{soh.BackupPowerUnstable, s.BackupPowerUnstable},
		{soh.ClockLocked, s.ClockLocked},
	}
	for _, f := range flags {
		b, err := soh.NewBoolean(channel, f.typ, start, end, f.set)
		if err != nil {
			return err
		}
		e.Booleans = append(e.Booleans, b)
	}

	a, err := soh.NewAnalog(channel, soh.ClockDifferentialInMicroseconds, start, end, float64(s.ClockDifferential.Microseconds()))
	if err != nil {
		return err
	}
	e.Analogs = append(e.Analogs, a)
	return nil
}
