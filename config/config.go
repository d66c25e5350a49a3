package config

import (
	"context"

	"github.com/kelseyhightower/envconfig"
)

// Env holds the process environment switches.
type Env struct {
	// DevLogging enables verbose console logging.
	DevLogging bool `envconfig:"DEV_LOGGING" default:"false"`
	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `envconfig:"AA_METRICS_ADDR"`
	// ConfigPath is the spec file used when no --config flag is given.
	ConfigPath string `envconfig:"AA_CONFIG" default:"aa-dc.yaml"`
}

type envContextKey struct{}

func ParseEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return Env{}, err
	}
	return env, nil
}

func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envContextKey{}, env)
}

func EnvFromContext(ctx context.Context) Env {
	if env, ok := ctx.Value(envContextKey{}).(Env); ok {
		return env
	}

	return Env{}
}
