package config

import (
	"os"
	"strconv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONNPOOL_"

// applyEnvOverrides overlays CONNPOOL_* variables on cfg. Values that fail
// to parse are logged and ignored.
func applyEnvOverrides(cfg *Config) {
	envInt("MAX_CONNECTIONS_PER_TARGET", &cfg.Pool.MaxConnectionsPerTarget)
	envInt("MIN_CONNECTIONS", &cfg.Pool.MinConnections)
	envDuration("IDLE_TIMEOUT", &cfg.Pool.IdleTimeout)
	envDuration("ACQUIRE_TIMEOUT", &cfg.Pool.AcquireTimeout)
	envDuration("CREATE_TIMEOUT", &cfg.Pool.CreateTimeout)
	envBool("VALIDATION_ENABLED", &cfg.Pool.ValidationEnabled)
	envDuration("VALIDATION_INTERVAL", &cfg.Pool.ValidationInterval)
	envDuration("VALIDATION_TIMEOUT", &cfg.Pool.ValidationTimeout)
	envDuration("CLEANUP_INTERVAL", &cfg.Pool.CleanupInterval)
	envDuration("DRAIN_TIMEOUT", &cfg.Pool.DrainTimeout)
	if v, ok := lookup("STRATEGY"); ok {
		if err := cfg.Pool.Strategy.UnmarshalText([]byte(v)); err != nil {
			ignored("STRATEGY", v, err)
		}
	}

	envDuration("DIAL_TIMEOUT", &cfg.Transport.DialTimeout)
	envString("CLIENT_NAME", &cfg.Transport.ClientName)
	envString("SAM_ADDRESS", &cfg.Transport.SAMAddress)

	envBool("BREAKER_ENABLED", &cfg.Resilience.Enabled)
	envInt("BREAKER_FAILURE_THRESHOLD", &cfg.Resilience.FailureThreshold)
	envDuration("BREAKER_TIMEOUT", &cfg.Resilience.Timeout)

	envBool("RATELIMIT_ENABLED", &cfg.RateLimit.Enabled)
	if v, ok := lookup("RATELIMIT_RATE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.Rate = f
		} else {
			ignored("RATELIMIT_RATE", v, err)
		}
	}
	envInt("RATELIMIT_BURST", &cfg.RateLimit.Burst)

	envString("RPC_SOCKET", &cfg.RPC.Socket)
	envString("RPC_TCP_ADDRESS", &cfg.RPC.TCPAddress)
	envString("RPC_AUTH_FILE", &cfg.RPC.AuthFile)

	envBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString("METRICS_LISTEN", &cfg.Metrics.Listen)
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	return v, ok && v != ""
}

func ignored(name, value string, err error) {
	log.WithField("variable", EnvPrefix+name).
		WithField("value", value).
		WithError(err).
		Warn("ignoring invalid environment override")
}

func envString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		ignored(name, v, err)
		return
	}
	*dst = n
}

func envBool(name string, dst *bool) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		ignored(name, v, err)
		return
	}
	*dst = b
}

// envDuration accepts a Go duration ("90s") or a bare number of seconds.
func envDuration(name string, dst *Duration) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	var d Duration
	if err := d.UnmarshalText([]byte(v)); err != nil {
		ignored(name, v, err)
		return
	}
	*dst = d
}
