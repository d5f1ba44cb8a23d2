package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSelfSigned writes a self-signed certificate usable for both client
// and server auth and returns the cert and key paths.
func writeSelfSigned(t *testing.T, cn string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, cn+".crt")
	keyFile = filepath.Join(dir, cn+".key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestDisabledReturnsNil(t *testing.T) {
	server, err := LoadServerConfig(ServerConfig{})
	require.NoError(t, err)
	assert.Nil(t, server)

	client, err := LoadClientConfig(ClientConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestLoadServerConfig(t *testing.T) {
	cert, key := writeSelfSigned(t, "station-gw")

	cfg, err := LoadServerConfig(ServerConfig{Enabled: true, CertFile: cert, KeyFile: key, MinVersion: "1.3"})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.Equal(t, tls.NoClientCert, cfg.ClientAuth)

	cfg, err = LoadServerConfig(ServerConfig{
		Enabled: true, CertFile: cert, KeyFile: key,
		ClientCAFiles: []string{cert}, RequireClientCert: true,
	})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
	assert.NotNil(t, cfg.ClientCAs)
}

func TestLoadErrors(t *testing.T) {
	cert, key := writeSelfSigned(t, "station-gw")
	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not pem"), 0o600))

	_, err := LoadServerConfig(ServerConfig{Enabled: true, CertFile: cert, KeyFile: "missing.key"})
	assert.Error(t, err)
	_, err = LoadServerConfig(ServerConfig{Enabled: true, CertFile: cert, KeyFile: key, ClientCAFiles: []string{garbage}})
	assert.Error(t, err)
	_, err = LoadClientConfig(ClientConfig{Enabled: true, CAFiles: []string{garbage}})
	assert.Error(t, err)
	_, err = LoadClientConfig(ClientConfig{Enabled: true, CertFile: cert})
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS13), parseVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseVersion(""))
	assert.Equal(t, uint16(tls.VersionTLS12), parseVersion("1.0"))
}

// handshake runs a TLS handshake over loopback TCP and returns the server's
// result.
func handshake(t *testing.T, serverCfg, clientCfg *tls.Config) error {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		done <- tls.Server(conn, serverCfg).Handshake()
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	_ = tls.Client(conn, clientCfg).Handshake()
	return <-done
}

func TestMutualTLSHandshake(t *testing.T) {
	serverCert, serverKey := writeSelfSigned(t, "localhost")
	allowedCert, allowedKey := writeSelfSigned(t, "ARCES")
	otherCert, otherKey := writeSelfSigned(t, "intruder")

	serverCfg, err := LoadServerConfig(ServerConfig{
		Enabled: true, CertFile: serverCert, KeyFile: serverKey,
		ClientCAFiles:     []string{allowedCert, otherCert},
		RequireClientCert: true,
		AllowedClientCNs:  []string{"ARCES"},
	})
	require.NoError(t, err)

	clientFor := func(cert, key string) *tls.Config {
		cfg, err := LoadClientConfig(ClientConfig{
			Enabled: true, CAFiles: []string{serverCert}, CertFile: cert, KeyFile: key,
		})
		require.NoError(t, err)
		cfg.ServerName = "localhost"
		return cfg
	}

	t.Run("allowed CN", func(t *testing.T) {
		assert.NoError(t, handshake(t, serverCfg, clientFor(allowedCert, allowedKey)))
	})
	t.Run("rejected CN", func(t *testing.T) {
		serverErr := handshake(t, serverCfg, clientFor(otherCert, otherKey))
		require.Error(t, serverErr)
		assert.Contains(t, serverErr.Error(), "not allowed")
	})
}

func TestVerifyClientCN(t *testing.T) {
	chain := [][]*x509.Certificate{{{Subject: pkix.Name{CommonName: "ARCES"}}}}
	assert.NoError(t, verifyClientCN(chain, []string{"ARCES"}))
	assert.Error(t, verifyClientCN(chain, []string{"NOA"}))
	assert.Error(t, verifyClientCN(nil, []string{"ARCES"}))
}
