package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/denguex/internal/config"
)

// Config controls OTLP export of traces and metrics.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string // grpc or http/protobuf
	ServiceName    string
	ServiceVersion string
	Insecure       bool
	SamplingRate   float64
	MetricsEnabled bool
	ExportInterval time.Duration
	ShutdownTime   time.Duration
}

// NewDefaultConfig returns telemetry defaults. Telemetry is disabled until a
// collector is configured.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		Protocol:       "grpc",
		ServiceName:    "denguex",
		ServiceVersion: "dev",
		Insecure:       true,
		SamplingRate:   1.0,
		MetricsEnabled: true,
		ExportInterval: 15 * time.Second,
		ShutdownTime:   5 * time.Second,
	}
}

// FromConfig builds a telemetry config from the application config section.
func FromConfig(c config.TelemetryConfig, version string) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = c.Enabled
	cfg.Endpoint = c.Endpoint
	cfg.Insecure = c.Insecure
	cfg.SamplingRate = c.SamplingRate
	if c.Protocol != "" {
		cfg.Protocol = c.Protocol
	}
	if c.ServiceName != "" {
		cfg.ServiceName = c.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}

// Validate only checks an enabled config.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Endpoint == "":
		return errors.New("telemetry endpoint is empty")
	case c.ServiceName == "":
		return errors.New("telemetry service_name is empty")
	case c.Protocol != "grpc" && c.Protocol != "http/protobuf":
		return fmt.Errorf("telemetry protocol %q: want grpc or http/protobuf", c.Protocol)
	// Question traces must not cross the network in clear text.
	case c.Insecure && !c.isLocalEndpoint():
		return fmt.Errorf("insecure export to %s refused; enable TLS or use a loopback collector", c.Endpoint)
	case c.SamplingRate < 0 || c.SamplingRate > 1:
		return fmt.Errorf("telemetry sampling rate %g outside [0, 1]", c.SamplingRate)
	case c.MetricsEnabled && c.ExportInterval <= 0:
		return errors.New("metric export interval must be positive")
	case c.ShutdownTime <= 0:
		return errors.New("telemetry shutdown timeout must be positive")
	}
	return nil
}

// isLocalEndpoint reports whether the endpoint host is localhost or a
// loopback IP.
func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme leaves host:port, the form the OTLP HTTP exporters take.
func stripScheme(endpoint string) string {
	if _, rest, ok := strings.Cut(endpoint, "://"); ok {
		return rest
	}
	return endpoint
}
