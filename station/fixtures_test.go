package station

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/errors"
)

var t0 = time.Date(2024, time.February, 1, 12, 0, 0, 0, time.UTC)

func dataFrame(seq int64) *cd11.Frame {
	status := cd11.ChannelStatus{ClockLocked: true}.Bytes()
	return cd11.NewFrame("AAK", "0", seq, &cd11.DataFrame{
		FrameTimeLength: 10 * time.Second,
		NominalTime:     t0,
		Subframes: []cd11.ChannelSubframe{{
			Channel:    cd11.ChannelID{Site: "AAK", Channel: "BHZ"},
			DataType:   "s4",
			Timestamp:  t0,
			TimeLength: 10 * time.Second,
			Samples:    1,
			Status:     status,
			Data:       []byte{0, 0, 0, 7},
		}},
	})
}

func encode(t *testing.T, f *cd11.Frame) []byte {
	t.Helper()
	b, err := cd11.Encode(f)
	require.NoError(t, err)
	return b
}

// unknownType re-labels an encoded frame with an unregistered type code.
func unknownType(t *testing.T) []byte {
	b := encode(t, cd11.NewFrame("AAK", "0", 1, &cd11.Alert{Message: "x"}))
	b[3] = 99
	return b
}

// pipeConn returns a Connection over one end of a pipe and the peer end.
func pipeConn(t *testing.T, cfg ConnectionConfig) (*Connection, net.Conn) {
	t.Helper()
	local, peer := net.Pipe()
	t.Cleanup(func() {
		_ = peer.Close()
		_ = local.Close()
	})
	return NewConnection("test", local, cfg, ConnectionDeps{}), peer
}

func write(t *testing.T, w io.Writer, chunks ...[]byte) {
	t.Helper()
	go func() {
		for _, c := range chunks {
			if _, err := w.Write(c); err != nil {
				return
			}
		}
	}()
}

// peerReader decodes frames the connection sends back.
type peerReader struct {
	frames  *cd11.FrameReader
	decoder *cd11.Decoder
}

func newPeerReader(r io.Reader) *peerReader {
	return &peerReader{frames: cd11.NewFrameReader(r, 0), decoder: cd11.NewDecoder(cd11.WithCRCVerification(true))}
}

func (p *peerReader) next(t *testing.T) *cd11.Frame {
	t.Helper()
	raw, err := p.frames.Next()
	require.NoError(t, err)
	return p.decoder.Decode(raw).Frame()
}

// fakeTransport blocks reads until closed and counts Close calls.
type fakeTransport struct {
	closes    atomic.Int32
	failFirst bool
	closed    chan struct{}
	once      sync.Once
}

func newFakeTransport(failFirst bool) *fakeTransport {
	return &fakeTransport{failFirst: failFirst, closed: make(chan struct{})}
}

func (f *fakeTransport) Read([]byte) (int, error) {
	<-f.closed
	return 0, io.ErrClosedPipe
}

func (f *fakeTransport) Write(p []byte) (int, error) { return len(p), nil }

func (f *fakeTransport) Close() error {
	if n := f.closes.Add(1); f.failFirst && n == 1 {
		return errors.New("transport busy")
	}
	f.once.Do(func() { close(f.closed) })
	return nil
}

// recordingPublisher captures published records.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs [][]byte
	subj []string
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subj = append(p.subj, subject)
	p.msgs = append(p.msgs, data)
	return nil
}

func (p *recordingPublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}
