package station

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/dispatch"
	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/metric"
)

func TestServerServesSessionsUntilStopped(t *testing.T) {
	var alerts atomic.Int32
	factory := func(context.Context, *Connection) (*dispatch.Dispatcher, error) {
		return dispatch.NewBuilder().
			RegisterFunc(cd11.AlertType, func(context.Context, *cd11.Frame) error {
				alerts.Add(1)
				return nil
			}).
			Build()
	}
	s, err := NewServer(ServerConfig{Address: "127.0.0.1:0"}, factory, ServerDeps{MetricsRegistry: metric.NewMetricsRegistry()})
	require.NoError(t, err)
	require.NoError(t, s.Listen())

	served := make(chan error, 1)
	go func() { served <- s.Serve(t.Context()) }()

	var clients []net.Conn
	for range 3 {
		c, err := net.Dial("tcp", s.Addr().String())
		require.NoError(t, err)
		clients = append(clients, c)
		_, err = c.Write(encode(t, cd11.NewFrame("AAK", "IDC", 1, &cd11.Alert{Message: "hi"})))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return alerts.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, s.Sessions())

	// one client leaving does not disturb the others
	require.NoError(t, clients[0].Close())
	require.Eventually(t, func() bool { return s.Sessions() == 2 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Zero(t, s.Sessions())
	for _, c := range clients[1:] {
		_ = c.Close()
	}
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestServerOverTLS(t *testing.T) {
	var alerts atomic.Int32
	factory := func(context.Context, *Connection) (*dispatch.Dispatcher, error) {
		return dispatch.NewBuilder().
			RegisterFunc(cd11.AlertType, func(context.Context, *cd11.Frame) error {
				alerts.Add(1)
				return nil
			}).
			Build()
	}
	s, err := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		TLS:     &tls.Config{Certificates: []tls.Certificate{selfSignedCert(t)}, MinVersion: tls.VersionTLS12},
	}, factory, ServerDeps{})
	require.NoError(t, err)
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()

	c, err := tls.Dial("tcp", s.Addr().String(), &tls.Config{InsecureSkipVerify: true}) //nolint:gosec // self-signed test cert
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write(encode(t, cd11.NewFrame("AAK", "IDC", 1, &cd11.Alert{Message: "hi"})))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return alerts.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestServerRejectsSessionWhenFactoryFails(t *testing.T) {
	factory := func(context.Context, *Connection) (*dispatch.Dispatcher, error) {
		return nil, errors.ErrInvalidConfig
	}
	s, err := NewServer(ServerConfig{Address: "127.0.0.1:0"}, factory, ServerDeps{})
	require.NoError(t, err)
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = c.Read(make([]byte, 1))
	assert.Error(t, err, "rejected sessions are closed")
}

func TestServerConfigValidation(t *testing.T) {
	_, err := NewServer(ServerConfig{}, func(context.Context, *Connection) (*dispatch.Dispatcher, error) { return nil, nil }, ServerDeps{})
	assert.True(t, errors.IsInvalid(err))
	_, err = NewServer(ServerConfig{Address: ":0"}, nil, ServerDeps{})
	assert.Error(t, err)
}

func TestServerServeTwice(t *testing.T) {
	s, err := NewServer(ServerConfig{Address: "127.0.0.1:0"}, func(context.Context, *Connection) (*dispatch.Dispatcher, error) {
		return dispatch.NewBuilder().Build()
	}, ServerDeps{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx)
	}()
	require.Eventually(t, func() bool { return s.Addr() != nil }, time.Second, 5*time.Millisecond)

	err = s.Serve(ctx)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
	cancel()
	<-done
}
