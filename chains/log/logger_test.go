package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("hello", zap.String("module", "test"))

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "hello", logs.All()[0].Message)

	require.NotNil(t, FromContext(context.Background()))
}

func TestDefaultLogger(t *testing.T) {
	for _, dev := range []bool{true, false} {
		logger, err := DefaultLogger(dev)
		require.NoError(t, err)
		require.Equal(t, dev, logger.Core().Enabled(zapcore.DebugLevel))
	}
}
