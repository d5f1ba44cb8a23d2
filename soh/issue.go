// Package soh models acquired channel environmental issues, the
// state-of-health observations stations report per channel, and decides when
// two boolean observations can be coalesced into one.
package soh

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seisnet/cd11streams/errors"
)

// IssueType names the condition an environmental issue reports.
type IssueType string

// Boolean issue types reported in the CD-1.1 channel status block.
const (
	DeadSensorChannel            IssueType = "DEAD_SENSOR_CHANNEL"
	ZeroedData                   IssueType = "ZEROED_DATA"
	Clipped                      IssueType = "CLIPPED"
	CalibrationUnderway          IssueType = "CALIBRATION_UNDERWAY"
	EquipmentHousingOpen         IssueType = "EQUIPMENT_HOUSING_OPEN"
	DigitizingEquipmentOpen      IssueType = "DIGITIZING_EQUIPMENT_OPEN"
	VaultDoorOpened              IssueType = "VAULT_DOOR_OPENED"
	AuthenticationSealBroken     IssueType = "AUTHENTICATION_SEAL_BROKEN"
	EquipmentMoved               IssueType = "EQUIPMENT_MOVED"
	ClockDifferentialTooLarge    IssueType = "CLOCK_DIFFERENTIAL_TOO_LARGE"
	GPSReceiverOff               IssueType = "GPS_RECEIVER_OFF"
	GPSReceiverUnlocked          IssueType = "GPS_RECEIVER_UNLOCKED"
	DigitizerAnalogInputShorted  IssueType = "DIGITIZER_ANALOG_INPUT_SHORTED"
	DigitizerCalibrationLoopBack IssueType = "DIGITIZER_CALIBRATION_LOOP_BACK"
	MainPowerFailure             IssueType = "MAIN_POWER_FAILURE"
	BackupPowerUnstable          IssueType = "BACKUP_POWER_UNSTABLE"
	ClockLocked                  IssueType = "CLOCK_LOCKED"
)

// Analog issue types.
const (
	ClockDifferentialInMicroseconds IssueType = "CLOCK_DIFFERENTIAL_IN_MICROSECONDS_OVER_THRESHOLD"
)

// EnvironmentalIssueBoolean is one channel's boolean observation over
// [Start, End].
type EnvironmentalIssueBoolean struct {
	ID          string    `json:"id"`
	ChannelName string    `json:"channelName"`
	Type        IssueType `json:"type"`
	Start       time.Time `json:"startTime"`
	End         time.Time `json:"endTime"`
	Status      bool      `json:"status"`
}

// NewBoolean creates an observation with a fresh ID. It rejects end before start.
func NewBoolean(channel string, typ IssueType, start, end time.Time, status bool) (EnvironmentalIssueBoolean, error) {
	if err := validate(channel, start, end); err != nil {
		return EnvironmentalIssueBoolean{}, errors.WrapInvalid(err, "soh", "NewBoolean", "validate issue")
	}
	return EnvironmentalIssueBoolean{
		ID:          uuid.NewString(),
		ChannelName: channel,
		Type:        typ,
		Start:       start,
		End:         end,
		Status:      status,
	}, nil
}

// EnvironmentalIssueAnalog is one channel's measured value over [Start, End].
type EnvironmentalIssueAnalog struct {
	ID          string    `json:"id"`
	ChannelName string    `json:"channelName"`
	Type        IssueType `json:"type"`
	Start       time.Time `json:"startTime"`
	End         time.Time `json:"endTime"`
	Value       float64   `json:"value"`
}

// NewAnalog creates a measurement with a fresh ID. It rejects end before start.
func NewAnalog(channel string, typ IssueType, start, end time.Time, value float64) (EnvironmentalIssueAnalog, error) {
	if err := validate(channel, start, end); err != nil {
		return EnvironmentalIssueAnalog{}, errors.WrapInvalid(err, "soh", "NewAnalog", "validate issue")
	}
	return EnvironmentalIssueAnalog{
		ID:          uuid.NewString(),
		ChannelName: channel,
		Type:        typ,
		Start:       start,
		End:         end,
		Value:       value,
	}, nil
}

func validate(channel string, start, end time.Time) error {
	if channel == "" {
		return fmt.Errorf("%w: empty channel name", errors.ErrInvalidData)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", errors.ErrInvalidData, end, start)
	}
	return nil
}
