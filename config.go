package lambdacore

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"

	"github.com/mackee/lambdacore/lambdalog"
)

const defaultRuntimeAPIHostPort = "127.0.0.1:7000"

// Config is the Runtime Configuration value of spec.md §3, read once at
// startup from the process environment. Sources in priority order: an
// explicit override applied to the value LoadConfig returns > the
// AWS_LAMBDA_RUNTIME_API/REQUEST_TIMEOUT/LOG_LEVEL environment variables >
// the defaults below.
type Config struct {
	// RuntimeAPI is host:port, e.g. "127.0.0.1:7000".
	RuntimeAPI string `env:"AWS_LAMBDA_RUNTIME_API" envDefault:"127.0.0.1:7000"`

	// RequestTimeoutMS bounds only reporting calls; 0 means no timeout.
	RequestTimeoutMS int64 `env:"REQUEST_TIMEOUT" envDefault:"0"`

	// LogLevel is kept as the raw string rather than lambdalog.Level so a
	// typo'd value falls back to info (via lambdalog.ParseLevel) instead of
	// failing startup.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// MaxTimes bounds execution to this many invocations before shutting
	// down; 0 means unbounded. Not part of spec.md §6's environment table —
	// production deployments never set it — it exists for the
	// bounded-execution test harness and local smoke runs.
	MaxTimes int `env:"LAMBDACORE_MAX_TIMES" envDefault:"0"`
}

// RequestTimeout returns RequestTimeoutMS as a time.Duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// LogLevelParsed returns the parsed form of LogLevel.
func (c Config) LogLevelParsed() lambdalog.Level {
	return lambdalog.ParseLevel(c.LogLevel)
}

// LoadConfig reads Config from the process environment via
// github.com/caarlos0/env/v11. This is the one place env() is consulted;
// everything downstream takes Config by value (spec.md §9).
func LoadConfig() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, errors.Wrap(err, "lambdacore: parsing environment configuration")
	}
	if c.RuntimeAPI == "" {
		c.RuntimeAPI = defaultRuntimeAPIHostPort
	}
	if c.RequestTimeoutMS < 0 {
		return Config{}, errors.Newf("lambdacore: REQUEST_TIMEOUT must not be negative, got %d", c.RequestTimeoutMS)
	}
	return c, nil
}
