package rsdf

import (
	"time"

	"github.com/seisnet/cd11streams/cd11"
)

var t0 = time.Date(2024, time.February, 1, 12, 0, 0, 0, time.UTC)

func dataFrame(channels ...string) *cd11.Frame {
	status := cd11.ChannelStatus{
		ClockLocked:       true,
		MainPowerFailure:  true,
		ClockDifferential: 1500 * time.Microsecond,
	}.Bytes()

	df := &cd11.DataFrame{FrameTimeLength: 10 * time.Second, NominalTime: t0}
	for _, ch := range channels {
		df.Subframes = append(df.Subframes, cd11.ChannelSubframe{
			Channel:    cd11.ChannelID{Site: "AAK", Channel: ch},
			DataType:   "s4",
			Timestamp:  t0,
			TimeLength: 10 * time.Second,
			Samples:    1,
			Status:     status,
			Data:       []byte{0, 0, 0, 1},
		})
	}
	return cd11.NewFrame("AAK", "0", 1, df)
}

func rawRecord(f *cd11.Frame) RawStationDataFrame {
	b, err := cd11.Encode(f)
	if err != nil {
		panic(err)
	}
	return NewRawStationDataFrame("AAK", b, t0, t0.Add(10*time.Second), t0.Add(time.Minute))
}
