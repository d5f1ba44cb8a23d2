package cd11

import (
	"net/netip"
	"time"
)

var t0 = time.Date(2024, time.February, 1, 12, 34, 56, 789_000_000, time.UTC)

func sampleStatus() []byte {
	return ChannelStatus{
		ClockLocked:       true,
		VaultDoorOpened:   true,
		LastGPSSync:       t0.Add(-time.Hour),
		ClockDifferential: 250 * time.Microsecond,
	}.Bytes()
}

func sampleDataFrame() *DataFrame {
	sub := func(ch string) ChannelSubframe {
		return ChannelSubframe{
			Authenticated:     true,
			SensorType:        1,
			Channel:           ChannelID{Site: "AAK", Channel: ch, Location: "00"},
			DataType:          "s4",
			CalibrationFactor: 0.125,
			CalibrationPeriod: 1,
			Timestamp:         t0,
			TimeLength:        10 * time.Second,
			Samples:           400,
			Status:            sampleStatus(),
			Data:              []byte{0, 0, 0, 1, 0, 0, 0, 2, 0xff},
			AuthKeyID:         7,
			AuthValue:         []byte("sig"),
		}
	}
	return &DataFrame{
		FrameTimeLength: 10 * time.Second,
		NominalTime:     t0,
		Subframes:       []ChannelSubframe{sub("BHZ"), sub("BHN"), sub("BHE")},
	}
}

// samplePayloads holds one populated payload per registered frame type.
func samplePayloads() []Payload {
	conn := ConnectionFields{
		MajorVersion: 1,
		MinorVersion: 1,
		Name:         "AAK",
		Type:         "IMS",
		ServiceType:  "TCP",
		Primary:      Endpoint{Addr: netip.MustParseAddr("10.0.0.5"), Port: 8100},
		Secondary:    Endpoint{Addr: netip.MustParseAddr("10.0.0.6"), Port: 8101},
	}
	return []Payload{
		&ConnectionRequest{conn},
		&ConnectionResponse{conn},
		&OptionRequest{Options: []Option{{Type: 1, Value: []byte("AAK")}}},
		&OptionResponse{Options: []Option{{Type: 1, Value: []byte("AAK")}, {Type: 2, Value: []byte{9}}}},
		sampleDataFrame(),
		&Acknack{Frameset: "AAK:0", LowestSequence: 10, HighestSequence: 99, Gaps: []Gap{{Start: 20, End: 25}}},
		&Alert{Message: "shutting down"},
		&CommandRequest{Station: "AAK", Target: ChannelID{Site: "AAK", Channel: "BHZ"}, Timestamp: t0, Command: "calibrate"},
		&CommandResponse{Responder: "AAK", Target: ChannelID{Site: "AAK", Channel: "BHZ"}, Timestamp: t0, Request: "calibrate", Response: "ok"},
		&CD1Encapsulation{Body: []byte{1, 2, 3, 4, 5}},
		&CustomReset{Body: []byte{0, 0, 0, 1}},
	}
}

func mustEncode(f *Frame) []byte {
	b, err := Encode(f)
	if err != nil {
		panic(err)
	}
	return b
}
