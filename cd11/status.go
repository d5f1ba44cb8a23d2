package cd11

import (
	"fmt"
	"time"
)

// ChannelStatusLength is the size of a format 1 channel status block.
const ChannelStatusLength = 32

// ChannelStatus is the decoded format 1 channel status block.
//
// Layout: byte 0 format, byte 1 data status, byte 2 security, byte 3 misc,
// byte 4 voltage, bytes 5-7 reserved, bytes 8-27 time of last GPS sync,
// bytes 28-31 clock differential in microseconds.
type ChannelStatus struct {
	DeadSensorChannel   bool
	ZeroedData          bool
	Clipped             bool
	CalibrationUnderway bool

	EquipmentHousingOpen     bool
	DigitizingEquipmentOpen  bool
	VaultDoorOpened          bool
	AuthenticationSealBroken bool
	EquipmentMoved           bool

	ClockDifferentialTooLarge    bool
	GPSReceiverOff               bool
	GPSReceiverUnlocked          bool
	DigitizerAnalogInputShorted  bool
	DigitizerCalibrationLoopBack bool
	ClockLocked                  bool

	MainPowerFailure    bool
	BackupPowerUnstable bool

	LastGPSSync       time.Time
	ClockDifferential time.Duration
}

// ParseChannelStatus decodes a format 1 status block. A blank GPS sync time
// leaves LastGPSSync zero.
func ParseChannelStatus(b []byte) (ChannelStatus, error) {
	if len(b) < ChannelStatusLength {
		return ChannelStatus{}, fmt.Errorf("%w: channel status is %d bytes, want %d", ErrTruncated, len(b), ChannelStatusLength)
	}
	if b[0] != 1 {
		return ChannelStatus{}, fmt.Errorf("%w: unsupported channel status format %d", ErrFieldLength, b[0])
	}

	bit := func(v byte, n uint) bool { return v&(1<<n) != 0 }
	data, security, misc, voltage := b[1], b[2], b[3], b[4]

	s := ChannelStatus{
		DeadSensorChannel:   bit(data, 0),
		ZeroedData:          bit(data, 1),
		Clipped:             bit(data, 2),
		CalibrationUnderway: bit(data, 3),

		EquipmentHousingOpen:     bit(security, 0),
		DigitizingEquipmentOpen:  bit(security, 1),
		VaultDoorOpened:          bit(security, 2),
		AuthenticationSealBroken: bit(security, 3),
		EquipmentMoved:           bit(security, 4),

		ClockDifferentialTooLarge:    bit(misc, 0),
		GPSReceiverOff:               bit(misc, 1),
		GPSReceiverUnlocked:          bit(misc, 2),
		DigitizerAnalogInputShorted:  bit(misc, 3),
		DigitizerCalibrationLoopBack: bit(misc, 4),
		ClockLocked:                  bit(misc, 5),

		MainPowerFailure:    bit(voltage, 0),
		BackupPowerUnstable: bit(voltage, 1),
	}

	r := newReader(b[8:ChannelStatusLength])
	if sync := r.next(TimeLength); string(sync) != string(make([]byte, TimeLength)) {
		t, err := ParseTime(string(sync))
		if err != nil {
			return ChannelStatus{}, err
		}
		s.LastGPSSync = t
	}
	s.ClockDifferential = time.Duration(r.int32()) * time.Microsecond
	return s, r.err
}

// Bytes encodes s as a format 1 status block.
func (s ChannelStatus) Bytes() []byte {
	var data, security, misc, voltage byte
	set := func(v *byte, n uint, on bool) {
		if on {
			*v |= 1 << n
		}
	}
	set(&data, 0, s.DeadSensorChannel)
	set(&data, 1, s.ZeroedData)
	set(&data, 2, s.Clipped)
	set(&data, 3, s.CalibrationUnderway)
	set(&security, 0, s.EquipmentHousingOpen)
	set(&security, 1, s.DigitizingEquipmentOpen)
	set(&security, 2, s.VaultDoorOpened)
	set(&security, 3, s.AuthenticationSealBroken)
	set(&security, 4, s.EquipmentMoved)
	set(&misc, 0, s.ClockDifferentialTooLarge)
	set(&misc, 1, s.GPSReceiverOff)
	set(&misc, 2, s.GPSReceiverUnlocked)
	set(&misc, 3, s.DigitizerAnalogInputShorted)
	set(&misc, 4, s.DigitizerCalibrationLoopBack)
	set(&misc, 5, s.ClockLocked)
	set(&voltage, 0, s.MainPowerFailure)
	set(&voltage, 1, s.BackupPowerUnstable)

	w := writer{buf: []byte{1, data, security, misc, voltage, 0, 0, 0}}
	if s.LastGPSSync.IsZero() {
		w.text("", TimeLength)
	} else {
		w.timestamp(s.LastGPSSync)
	}
	w.int32(int32(s.ClockDifferential / time.Microsecond))
	return w.bytes()
}
