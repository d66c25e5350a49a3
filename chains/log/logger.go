package logging

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogDir receives one log file per process run.
const LogDir = "/tmp/aa-dc"

type loggerContextKey struct{}

var (
	logFile *os.File
	once    sync.Once
)

func getLogFile() (*os.File, error) {
	var err error
	once.Do(func() {
		//nolint:gosec // G301: valid perm
		if err = os.MkdirAll(LogDir, 0o755); err != nil {
			err = fmt.Errorf("failed to create log directory: %w", err)
			return
		}

		timestamp := time.Now().Format("2006-01-02-15-04-05")
		logPath := filepath.Join(LogDir, fmt.Sprintf("aa-dc-%s.log", timestamp))

		//nolint:gosec // G302: valid perm
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			err = fmt.Errorf("failed to open log file: %w", err)
			return
		}

		go func() {
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			<-c
			CloseLogFile()
			os.Exit(1)
		}()
	})

	return logFile, err
}

func CloseLogFile() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
	}
}

// DefaultLogger writes to stdout and to a file under LogDir. Development
// logging switches to a console encoder at debug level.
func DefaultLogger(devLogging bool, options ...zap.Option) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	var logLevel zapcore.Level

	if devLogging {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		logLevel = zap.DebugLevel
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		logLevel = zap.InfoLevel
	}

	stdoutCore := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), logLevel)

	logFile, err := getLogFile()
	if err != nil {
		// stdout only
		return zap.New(stdoutCore, options...), nil
	}
	fileCore := zapcore.NewCore(encoder, zapcore.AddSync(logFile), logLevel)

	return zap.New(zapcore.NewTee(stdoutCore, fileCore), options...), nil
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}
