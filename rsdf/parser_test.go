package rsdf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/soh"
)

func TestStatusParserExtractsEveryFlag(t *testing.T) {
	rec := rawRecord(dataFrame("BHZ", "BHN", "BHE"))

	e, err := NewStatusParser(true).Parse(t.Context(), rec)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, e.RawFrameID)
	assert.Equal(t, "AAK", e.StationName)
	assert.Len(t, e.Booleans, 3*17)
	require.Len(t, e.Analogs, 3)

	set := map[soh.IssueType]int{}
	for _, b := range e.Booleans {
		assert.Equal(t, t0, b.Start)
		assert.Equal(t, t0.Add(10*time.Second), b.End)
		if b.Status {
			set[b.Type]++
		}
	}
	assert.Equal(t, map[soh.IssueType]int{soh.ClockLocked: 3, soh.MainPowerFailure: 3}, set)

	a := e.Analogs[0]
	assert.Equal(t, "AAK.BHZ", a.ChannelName)
	assert.Equal(t, soh.ClockDifferentialInMicroseconds, a.Type)
	assert.InDelta(t, 1500, a.Value, 0)
}

func TestStatusParserSkipsSubframesWithoutStatus(t *testing.T) {
	f := dataFrame("BHZ", "BHN")
	f.Payload.(*cd11.DataFrame).Subframes[1].Status = nil

	e, err := NewStatusParser(false).Parse(t.Context(), rawRecord(f))
	require.NoError(t, err)
	assert.Equal(t, 18, e.IssueCount())
}

func TestStatusParserRejects(t *testing.T) {
	p := NewStatusParser(true)

	t.Run("malformed payload", func(t *testing.T) {
		rec := rawRecord(dataFrame("BHZ"))
		rec.RawPayload = rec.RawPayload[:40]
		_, err := p.Parse(t.Context(), rec)
		assert.True(t, errors.IsInvalid(err))
		assert.ErrorIs(t, err, errors.ErrParsingFailed)
	})

	t.Run("not a data frame", func(t *testing.T) {
		rec := rawRecord(cd11.NewFrame("AAK", "0", 1, &cd11.Alert{Message: "bye"}))
		_, err := p.Parse(t.Context(), rec)
		assert.ErrorIs(t, err, errors.ErrInvalidData)
	})

	t.Run("unknown format", func(t *testing.T) {
		rec := rawRecord(dataFrame("BHZ"))
		rec.Format = "CD1"
		_, err := p.Parse(t.Context(), rec)
		assert.ErrorIs(t, err, errors.ErrInvalidData)
	})

	t.Run("bad status block", func(t *testing.T) {
		f := dataFrame("BHZ")
		f.Payload.(*cd11.DataFrame).Subframes[0].Status = []byte{2, 0, 0}
		_, err := p.Parse(t.Context(), rawRecord(f))
		assert.True(t, errors.IsInvalid(err))
	})
}
