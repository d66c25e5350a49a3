package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	t.Setenv("DEV_LOGGING", "true")
	t.Setenv("AA_METRICS_ADDR", "127.0.0.1:9090")

	env, err := ParseEnv()
	require.NoError(t, err)
	require.True(t, env.DevLogging)
	require.Equal(t, "127.0.0.1:9090", env.MetricsAddr)
	require.Equal(t, "aa-dc.yaml", env.ConfigPath)

	ctx := WithEnv(context.Background(), env)
	require.Equal(t, env, EnvFromContext(ctx))
	require.Equal(t, Env{}, EnvFromContext(context.Background()))
}

func TestParseEnvInvalid(t *testing.T) {
	t.Setenv("DEV_LOGGING", "not-a-bool")
	_, err := ParseEnv()
	require.Error(t, err)
}
