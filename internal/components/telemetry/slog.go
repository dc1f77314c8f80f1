package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
)

// InitSlog installs a text logger on stderr as the slog default and returns
// it, verbose lowers the level to debug.
func InitSlog(verbose bool) *slog.Logger {
	logger := newLogger(os.Stderr, verbose)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SlogAPI implements API on top of a slog.Logger. Report ids become the log
// message, counts are logged at debug level.
type SlogAPI struct {
	logger *slog.Logger
}

// NewSlogAPI logs through logger, or through whatever slog.Default() is at the
// time of each report when logger is nil.
func NewSlogAPI(logger *slog.Logger) SlogAPI {
	return SlogAPI{logger: logger}
}

func (s SlogAPI) log(level slog.Level, msg string, params []any) {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.Log(ctx, level, msg, attrs(params)...)
}

// attrs names report params. slog attributes are kept as they are, errors go
// under "err" and anything else under its position, ex. "arg.1".
func attrs(params []any) []any {
	out := make([]any, 0, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case slog.Attr:
			out = append(out, v)
		case error:
			out = append(out, slog.String("err", v.Error()))
		default:
			out = append(out, slog.Any("arg."+strconv.Itoa(i), v))
		}
	}
	return out
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	s.log(slog.LevelError, id, params)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	s.log(slog.LevelWarn, id, params)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	s.log(slog.LevelDebug, message, params)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.log(slog.LevelDebug, id, []any{slog.Int64("count", count)})
}
