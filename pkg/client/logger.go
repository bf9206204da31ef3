package client

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-resty/resty/v2"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

const (
	logErrorKey     = "error"
	logRequestIDKey = "request-id"
)

// restyLogger forwards resty messages to slog.
type restyLogger struct {
	logger *slog.Logger
}

var _ resty.Logger = &restyLogger{}

func newRestyLogger(l *slog.Logger) resty.Logger {
	return &restyLogger{logger: l.With(slog.String("component", "resty"))}
}

func (a *restyLogger) Errorf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *restyLogger) Warnf(format string, v ...any) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

func (a *restyLogger) Debugf(format string, v ...any) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}
