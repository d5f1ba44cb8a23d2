package station

import (
	"encoding/binary"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/rsdf"
)

// startSession serves a session over a pipe and returns the peer end.
func startSession(t *testing.T, cfg SessionConfig, pub rsdf.Publisher) (*Connection, net.Conn, chan error) {
	t.Helper()
	factory, err := NewSessionFactory(cfg, pub)
	require.NoError(t, err)

	conn, peer := pipeConn(t, ConnectionConfig{VerifyCRC: true})
	d, err := factory(t.Context(), conn)
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- conn.Serve(t.Context(), d) }()
	return conn, peer, served
}

func TestSessionAnswersConnectionRequest(t *testing.T) {
	addr := netip.MustParseAddrPort("10.1.2.3:8200")
	_, peer, _ := startSession(t, SessionConfig{Name: "IDC", ConsumerAddr: addr}, &recordingPublisher{})
	reader := newPeerReader(peer)

	write(t, peer, encode(t, cd11.NewFrame("AAK", "IDC", 0, &cd11.ConnectionRequest{ConnectionFields: cd11.ConnectionFields{
		MajorVersion: 1, MinorVersion: 1, Name: "AAK", Type: "IMS", ServiceType: "TCP",
	}})))

	f := reader.next(t)
	require.Equal(t, cd11.ConnectionResponseType, f.Type())
	resp := f.Payload.(*cd11.ConnectionResponse)
	assert.Equal(t, "IDC", resp.Name)
	assert.Equal(t, addr.Addr(), resp.Primary.Addr)
	assert.Equal(t, addr.Port(), resp.Primary.Port)
	assert.Equal(t, "AAK", f.Header.Destination)
}

func TestSessionForwardsDataFrames(t *testing.T) {
	pub := &recordingPublisher{}
	_, peer, _ := startSession(t, SessionConfig{Name: "IDC"}, pub)

	frame := dataFrame(42)
	write(t, peer, encode(t, frame))
	require.Eventually(t, func() bool { return pub.len() == 1 }, time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	subject, msg := pub.subj[0], pub.msgs[0]
	pub.mu.Unlock()
	assert.Equal(t, rsdf.SubjectRawFrames, subject)

	rec, err := rsdf.DecodeRawFrame(msg)
	require.NoError(t, err)
	assert.Equal(t, "AAK", rec.StationName)
	assert.Equal(t, encode(t, frame), rec.RawPayload)
	assert.True(t, t0.Equal(rec.PayloadStart))
	assert.True(t, t0.Add(10*time.Second).Equal(rec.PayloadEnd))

	extract, err := rsdf.NewStatusParser(true).Parse(t.Context(), rec)
	require.NoError(t, err)
	assert.Equal(t, 18, extract.IssueCount())
}

func TestSessionForwardsReceivedBytes(t *testing.T) {
	pub := &recordingPublisher{}
	_, peer, _ := startSession(t, SessionConfig{Name: "IDC"}, pub)

	// Stations may pad names with spaces where the encoder writes NULs.
	wire := encode(t, dataFrame(7))
	copy(wire[8:8+cd11.CreatorLength], "AAK     ")
	binary.BigEndian.PutUint64(wire[len(wire)-8:], cd11.Checksum(wire))
	require.NotEqual(t, encode(t, dataFrame(7)), wire)

	write(t, peer, wire)
	require.Eventually(t, func() bool { return pub.len() == 1 }, time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	msg := pub.msgs[0]
	pub.mu.Unlock()
	rec, err := rsdf.DecodeRawFrame(msg)
	require.NoError(t, err)
	assert.Equal(t, "AAK", rec.StationName)
	assert.Equal(t, wire, rec.RawPayload)
}

func TestSessionRepliesToAcknack(t *testing.T) {
	_, peer, _ := startSession(t, SessionConfig{Name: "IDC"}, &recordingPublisher{})
	reader := newPeerReader(peer)

	write(t, peer,
		encode(t, dataFrame(1)),
		encode(t, dataFrame(3)),
		encode(t, cd11.NewFrame("AAK", "IDC", 0, &cd11.Acknack{Frameset: "AAK:IDC", LowestSequence: 1, HighestSequence: 3})))

	f := reader.next(t)
	require.Equal(t, cd11.AcknackType, f.Type())
	a := f.Payload.(*cd11.Acknack)
	assert.Equal(t, "AAK:IDC", a.Frameset)
	assert.Equal(t, int64(1), a.LowestSequence)
	assert.Equal(t, int64(3), a.HighestSequence)
	assert.Equal(t, []cd11.Gap{{Start: 2, End: 2}}, a.Gaps)
}

func TestSessionClosesOnAlert(t *testing.T) {
	conn, peer, served := startSession(t, SessionConfig{Name: "IDC"}, &recordingPublisher{})

	write(t, peer, encode(t, cd11.NewFrame("AAK", "IDC", 0, &cd11.Alert{Message: "shutdown"})))

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	assert.Equal(t, StateClosed, conn.State())
}

func TestSessionSurvivesMalformedFrames(t *testing.T) {
	pub := &recordingPublisher{}
	conn, peer, _ := startSession(t, SessionConfig{Name: "IDC", MalformedLogRate: 1000}, pub)

	write(t, peer, unknownType(t), unknownType(t), encode(t, dataFrame(1)))
	require.Eventually(t, func() bool { return pub.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOpen, conn.State())
}

func TestNewSessionFactoryValidates(t *testing.T) {
	_, err := NewSessionFactory(SessionConfig{Name: "IDC"}, nil)
	assert.Error(t, err)
	_, err = NewSessionFactory(SessionConfig{Name: "TOOLONGNAME"}, &recordingPublisher{})
	assert.Error(t, err)
}
