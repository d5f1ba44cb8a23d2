// Package tlsutil builds tls.Config values for the station listener and the
// NATS connection.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/seisnet/cd11streams/errors"
)

// ServerConfig configures TLS on the station listener. Client certificate
// verification is enabled when ClientCAFiles is non-empty.
type ServerConfig struct {
	Enabled           bool     `yaml:"enabled"`
	CertFile          string   `yaml:"cert-file"`
	KeyFile           string   `yaml:"key-file"`
	MinVersion        string   `yaml:"min-version,omitempty"`
	ClientCAFiles     []string `yaml:"client-ca-files,omitempty"`
	RequireClientCert bool     `yaml:"require-client-cert,omitempty"`
	AllowedClientCNs  []string `yaml:"allowed-client-cns,omitempty"`
}

// ClientConfig configures TLS for outbound connections. CAFiles are trusted
// in addition to the system pool. CertFile and KeyFile provide a client
// certificate for mutual TLS.
type ClientConfig struct {
	Enabled            bool     `yaml:"enabled"`
	CAFiles            []string `yaml:"ca-files,omitempty"`
	CertFile           string   `yaml:"cert-file,omitempty"`
	KeyFile            string   `yaml:"key-file,omitempty"`
	MinVersion         string   `yaml:"min-version,omitempty"`
	InsecureSkipVerify bool     `yaml:"insecure-skip-verify,omitempty"`
}

// LoadServerConfig returns nil when TLS is disabled.
func LoadServerConfig(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerConfig", "load certificate")
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseVersion(cfg.MinVersion),
	}
	if len(cfg.ClientCAFiles) == 0 {
		return tlsConfig, nil
	}

	pool, err := appendPEMFiles(x509.NewCertPool(), cfg.ClientCAFiles, "LoadServerConfig")
	if err != nil {
		return nil, err
	}
	tlsConfig.ClientCAs = pool
	tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	if cfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}
	if len(cfg.AllowedClientCNs) > 0 {
		allowed := cfg.AllowedClientCNs
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, chains [][]*x509.Certificate) error {
			return verifyClientCN(chains, allowed)
		}
	}
	return tlsConfig, nil
}

// LoadClientConfig returns nil when TLS is disabled.
func LoadClientConfig(cfg ClientConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}
	roots, err = appendPEMFiles(roots, cfg.CAFiles, "LoadClientConfig")
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		RootCAs:            roots,
		MinVersion:         parseVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in for test deployments
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func appendPEMFiles(pool *x509.CertPool, files []string, op string) (*x509.CertPool, error) {
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", op, "read CA file "+file)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, errors.WrapFatal(errors.ErrInvalidConfig, "tlsutil", op, "no certificates in "+file)
		}
	}
	return pool, nil
}

func verifyClientCN(chains [][]*x509.Certificate, allowed []string) error {
	if len(chains) == 0 || len(chains[0]) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}
	cn := chains[0][0].Subject.CommonName
	for _, name := range allowed {
		if cn == name {
			return nil
		}
	}
	return fmt.Errorf("client certificate CN %q not allowed", cn)
}

// parseVersion defaults to TLS 1.2.
func parseVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
