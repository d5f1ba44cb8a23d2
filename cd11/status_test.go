package cd11

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelStatusBits(t *testing.T) {
	in := ChannelStatus{
		DeadSensorChannel:            true,
		Clipped:                      true,
		EquipmentMoved:               true,
		GPSReceiverUnlocked:          true,
		DigitizerCalibrationLoopBack: true,
		BackupPowerUnstable:          true,
		LastGPSSync:                  t0,
		ClockDifferential:            -1500 * time.Microsecond,
	}
	b := in.Bytes()
	require.Len(t, b, ChannelStatusLength)
	assert.Equal(t, byte(1), b[0])
	assert.Equal(t, byte(0b0101), b[1])
	assert.Equal(t, byte(0b10000), b[2])
	assert.Equal(t, byte(0b10100), b[3])
	assert.Equal(t, byte(0b10), b[4])

	out, err := ParseChannelStatus(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestChannelStatusWithoutGPSSync(t *testing.T) {
	out, err := ParseChannelStatus(ChannelStatus{ClockLocked: true}.Bytes())
	require.NoError(t, err)
	assert.True(t, out.ClockLocked)
	assert.True(t, out.LastGPSSync.IsZero())
}

func TestChannelStatusRejects(t *testing.T) {
	_, err := ParseChannelStatus(make([]byte, 10))
	assert.ErrorIs(t, err, ErrTruncated)

	b := ChannelStatus{}.Bytes()
	b[0] = 2
	_, err = ParseChannelStatus(b)
	assert.ErrorIs(t, err, ErrFieldLength)
}
