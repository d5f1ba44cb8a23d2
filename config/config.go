// Package config loads the cd11d configuration from YAML, applies
// environment overrides and validates the result. It also turns the merge
// tolerance section into a soh.ToleranceResolver and can reload it when the
// file changes.
//
// A minimal file:
//
//	nats:
//	  url: nats://localhost:4222
//	station:
//	  listen: ":8100"
//	  name: IDC
//	soh:
//	  merge-tolerance:
//	    default: PT0.5S
//	    channels:
//	      AAK.BHZ: PT2S
package config

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/pkg/tlsutil"
	"github.com/seisnet/cd11streams/rsdf"
)

// Environment overrides.
const (
	EnvConfigPath = "CD11_CONFIG"
	EnvNATSURL    = "CD11_NATS_URL"
	EnvLogLevel   = "CD11_LOG_LEVEL"

	// EnvNATSPassword keeps the bus password out of the config file.
	EnvNATSPassword = "CD11_NATS_PASSWORD"
)

// Config is the complete daemon configuration.
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Station StationConfig `yaml:"station"`
	SOH     SOHConfig     `yaml:"soh"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logs    LogsConfig    `yaml:"logs"`
}

// NATSConfig configures the bus connection and the subjects used on it.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	Token         string        `yaml:"token,omitempty"`
	User          string        `yaml:"user,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	MaxReconnects int           `yaml:"max-reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect-wait"`
	PingInterval  time.Duration `yaml:"ping-interval"`
	// CircuitThreshold is the number of consecutive connection failures
	// that open the client's circuit breaker.
	CircuitThreshold int32                `yaml:"circuit-threshold"`
	Stream           string               `yaml:"stream"`
	Durable          string               `yaml:"durable"`
	Subjects         SubjectsConfig       `yaml:"subjects"`
	TLS              tlsutil.ClientConfig `yaml:"tls"`
}

// SubjectsConfig names the bus subjects.
type SubjectsConfig struct {
	Raw     string `yaml:"raw"`
	Extract string `yaml:"extract"`
	Issue   string `yaml:"issue"`
}

// StationConfig configures the station listener and session handlers.
type StationConfig struct {
	Listen           string               `yaml:"listen"`
	Name             string               `yaml:"name"`
	ConsumerAddress  string               `yaml:"consumer-address"`
	MaxFrameSize     int                  `yaml:"max-frame-size"`
	VerifyCRC        bool                 `yaml:"verify-crc"`
	IdleTimeout      time.Duration        `yaml:"idle-timeout"`
	AcknackInterval  time.Duration        `yaml:"acknack-interval"`
	MalformedLogRate float64              `yaml:"malformed-log-rate"`
	TLS              tlsutil.ServerConfig `yaml:"tls"`
}

// SOHConfig holds state-of-health settings.
type SOHConfig struct {
	MergeTolerance ToleranceConfig `yaml:"merge-tolerance"`
	// DedupSize is how many recent raw frames the extractor remembers to
	// drop retransmissions. Zero disables it.
	DedupSize int `yaml:"dedup-size"`
}

// ToleranceConfig holds ISO-8601 durations: a default and per-channel
// overrides keyed by channel name or by site.
type ToleranceConfig struct {
	Default  string            `yaml:"default"`
	Channels map[string]string `yaml:"channels"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// LogsConfig configures logging.
type LogsConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig enables a rotating log file when Directory is set.
type LogFileConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxAgeDays int    `yaml:"max-age-days"`
	MaxBackups int    `yaml:"max-backups"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:              "nats://localhost:4222",
			Name:             "cd11d",
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,
			PingInterval:     30 * time.Second,
			CircuitThreshold: 5,
			Stream:           "CD11_RSDF",
			Durable:          "cd11-soh-extractor",
			Subjects: SubjectsConfig{
				Raw:     rsdf.SubjectRawFrames,
				Extract: rsdf.SubjectExtracts,
				Issue:   rsdf.SubjectIssues,
			},
		},
		Station: StationConfig{
			Listen:           ":8100",
			Name:             "IDC",
			MaxFrameSize:     cd11.DefaultMaxFrameSize,
			VerifyCRC:        true,
			IdleTimeout:      2 * time.Minute,
			AcknackInterval:  30 * time.Second,
			MalformedLogRate: 1,
		},
		SOH: SOHConfig{
			MergeTolerance: ToleranceConfig{Default: "PT0.5S"},
			DedupSize:      4096,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
			Path:    "/metrics",
		},
		Logs: LogsConfig{
			Level:  "info",
			Format: "json",
			File: LogFileConfig{
				MaxSizeMB:  100,
				MaxAgeDays: 14,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path falls back to $CD11_CONFIG, and with neither
// set the defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		p, _, err := envValue(EnvConfigPath)
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if path != "" {
		data, err := safeReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read "+path)
		}
		if err := decode(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "parse "+path)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "apply environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "validate")
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates, without consulting
// the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v, ok, err := envValue(EnvNATSURL); err != nil {
		return err
	} else if ok {
		c.NATS.URL = v
	}
	if v, ok, err := envValue(EnvNATSPassword); err != nil {
		return err
	} else if ok {
		c.NATS.Password = v
	}
	if v, ok, err := envValue(EnvLogLevel); err != nil {
		return err
	} else if ok {
		c.Logs.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...))
	}

	if c.NATS.URL == "" {
		bad("nats.url is required")
	}
	if c.NATS.ReconnectWait <= 0 || c.NATS.PingInterval <= 0 || c.NATS.MaxReconnects < -1 {
		bad("nats reconnect-wait and ping-interval must be positive, max-reconnects at least -1")
	}
	if c.NATS.CircuitThreshold < 1 {
		bad("nats.circuit-threshold must be at least 1")
	}
	if c.NATS.Password != "" && c.NATS.User == "" {
		bad("nats.password requires nats.user")
	}
	if c.NATS.Stream == "" || c.NATS.Durable == "" {
		bad("nats.stream and nats.durable are required")
	}
	for name, subject := range map[string]string{
		"raw": c.NATS.Subjects.Raw, "extract": c.NATS.Subjects.Extract, "issue": c.NATS.Subjects.Issue,
	} {
		if !validSubject(subject) {
			bad("nats.subjects.%s %q is not a valid subject", name, subject)
		}
	}

	if c.Station.Listen == "" {
		bad("station.listen is required")
	} else if _, port, err := net.SplitHostPort(c.Station.Listen); err != nil {
		bad("station.listen %q: %v", c.Station.Listen, err)
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		bad("station.listen %q: bad port", c.Station.Listen)
	}
	if c.Station.Name == "" || len(c.Station.Name) > cd11.CreatorLength {
		bad("station.name must be 1 to %d characters", cd11.CreatorLength)
	}
	if c.Station.ConsumerAddress != "" {
		if _, err := netip.ParseAddrPort(c.Station.ConsumerAddress); err != nil {
			bad("station.consumer-address: %v", err)
		}
	}
	if c.Station.MaxFrameSize < cd11.HeaderLength {
		bad("station.max-frame-size %d below header length", c.Station.MaxFrameSize)
	}
	if c.Station.TLS.Enabled && (c.Station.TLS.CertFile == "" || c.Station.TLS.KeyFile == "") {
		bad("station.tls requires cert-file and key-file")
	}
	if c.NATS.TLS.Enabled && (c.NATS.TLS.CertFile == "") != (c.NATS.TLS.KeyFile == "") {
		bad("nats.tls cert-file and key-file must be set together")
	}
	if c.Station.IdleTimeout < 0 || c.Station.AcknackInterval < 0 || c.Station.MalformedLogRate < 0 {
		bad("station timeouts and rates must not be negative")
	}

	if _, err := NewToleranceTable(c.SOH.MergeTolerance); err != nil {
		errs = append(errs, err)
	}
	if c.SOH.DedupSize < 0 {
		bad("soh.dedup-size must not be negative")
	}

	switch c.Logs.Level {
	case "debug", "info", "warn", "error":
	default:
		bad("logs.level %q", c.Logs.Level)
	}
	switch c.Logs.Format {
	case "json", "text":
	default:
		bad("logs.format %q", c.Logs.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		bad("metrics.path %q must start with /", c.Metrics.Path)
	}

	return errors.Join(errs...)
}

// ConsumerAddrPort returns the parsed consumer address, or the zero value.
func (s StationConfig) ConsumerAddrPort() netip.AddrPort {
	ap, _ := netip.ParseAddrPort(s.ConsumerAddress)
	return ap
}

// validSubject accepts dot separated tokens without wildcards or spaces.
func validSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, tok := range strings.Split(s, ".") {
		if tok == "" || strings.ContainsAny(tok, " \t*>") {
			return false
		}
	}
	return true
}
