package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/labstack/echo/v4"
	echolog "github.com/labstack/gommon/log"
)

// echoLogger routes echo's internal logging into the service logger so
// framework messages share the structured format. Output, prefix, header
// and level are owned by the logging package and the setters ignore them.
type echoLogger struct {
	logger *slog.Logger
}

var _ echo.Logger = (*echoLogger)(nil)

func newEchoLogger(l *slog.Logger) *echoLogger {
	if l == nil {
		l = slog.Default()
	}
	return &echoLogger{logger: l.With("component", "echo")}
}

func (a *echoLogger) log(level slog.Level, msg string) {
	a.logger.Log(context.Background(), level, msg)
}

func (a *echoLogger) logj(level slog.Level, j echolog.JSON) {
	a.logger.Log(context.Background(), level, "echo", "data", map[string]any(j))
}

func (a *echoLogger) Output() io.Writer {
	return io.Discard
}

func (a *echoLogger) SetOutput(io.Writer) {}

func (a *echoLogger) Prefix() string {
	return ""
}

func (a *echoLogger) SetPrefix(string) {}

func (a *echoLogger) SetHeader(string) {}

func (a *echoLogger) SetLevel(echolog.Lvl) {}

// Level reports the most verbose level the service logger accepts.
func (a *echoLogger) Level() echolog.Lvl {
	ctx := context.Background()
	switch {
	case a.logger.Enabled(ctx, slog.LevelDebug):
		return echolog.DEBUG
	case a.logger.Enabled(ctx, slog.LevelInfo):
		return echolog.INFO
	case a.logger.Enabled(ctx, slog.LevelWarn):
		return echolog.WARN
	default:
		return echolog.ERROR
	}
}

func (a *echoLogger) Print(i ...any) {
	a.log(slog.LevelInfo, fmt.Sprint(i...))
}

func (a *echoLogger) Printf(format string, args ...any) {
	a.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (a *echoLogger) Printj(j echolog.JSON) {
	a.logj(slog.LevelInfo, j)
}

func (a *echoLogger) Debug(i ...any) {
	a.log(slog.LevelDebug, fmt.Sprint(i...))
}

func (a *echoLogger) Debugf(format string, args ...any) {
	a.log(slog.LevelDebug, fmt.Sprintf(format, args...))
}

func (a *echoLogger) Debugj(j echolog.JSON) {
	a.logj(slog.LevelDebug, j)
}

func (a *echoLogger) Info(i ...any) {
	a.log(slog.LevelInfo, fmt.Sprint(i...))
}

func (a *echoLogger) Infof(format string, args ...any) {
	a.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (a *echoLogger) Infoj(j echolog.JSON) {
	a.logj(slog.LevelInfo, j)
}

func (a *echoLogger) Warn(i ...any) {
	a.log(slog.LevelWarn, fmt.Sprint(i...))
}

func (a *echoLogger) Warnf(format string, args ...any) {
	a.log(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func (a *echoLogger) Warnj(j echolog.JSON) {
	a.logj(slog.LevelWarn, j)
}

func (a *echoLogger) Error(i ...any) {
	a.log(slog.LevelError, fmt.Sprint(i...))
}

func (a *echoLogger) Errorf(format string, args ...any) {
	a.log(slog.LevelError, fmt.Sprintf(format, args...))
}

func (a *echoLogger) Errorj(j echolog.JSON) {
	a.logj(slog.LevelError, j)
}

// Fatal and Panic never exit the process; the panic is caught by the
// recover middleware or surfaces from Run.
func (a *echoLogger) Fatal(i ...any) {
	a.Panic(i...)
}

func (a *echoLogger) Fatalf(format string, args ...any) {
	a.Panicf(format, args...)
}

func (a *echoLogger) Fatalj(j echolog.JSON) {
	a.Panicj(j)
}

func (a *echoLogger) Panic(i ...any) {
	msg := fmt.Sprint(i...)
	a.log(slog.LevelError, msg)
	panic(msg)
}

func (a *echoLogger) Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.log(slog.LevelError, msg)
	panic(msg)
}

func (a *echoLogger) Panicj(j echolog.JSON) {
	a.logj(slog.LevelError, j)
	panic(fmt.Sprintf("echo: %v", map[string]any(j)))
}
