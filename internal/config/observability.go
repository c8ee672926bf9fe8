package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// ObservabilityConfig configures the admin server that serves probes and metrics
// on a port separate from the API.
type ObservabilityConfig struct {
	Host string `envconfig:"HOST" default:""`
	Port string `envconfig:"PORT" default:"9090"`

	// Timeout bounds reads, writes, readiness checks and shutdown.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// Address returns the listen address. An empty host binds all interfaces.
func (o *ObservabilityConfig) Address() string {
	return net.JoinHostPort(o.Host, o.Port)
}

// Validate checks the port and that the three paths are absolute and distinct.
func (o *ObservabilityConfig) Validate() error {
	if err := validatePort(o.Port, "observability"); err != nil {
		return err
	}

	seen := make(map[string]string, 3)
	for name, path := range map[string]string{
		"liveness":  o.LivenessPath,
		"readiness": o.ReadinessPath,
		"metrics":   o.MetricsPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("observability %s path must start with '/', got %q", name, path)
		}
		if other, dup := seen[path]; dup {
			return fmt.Errorf("observability %s and %s paths are both %q", other, name, path)
		}
		seen[path] = name
	}
	return nil
}
