// Package logger wraps rs/zerolog behind the plain call-site API the rest
// of this codebase uses (Info/Infof/Warnf/Errorf), matching the shape the
// teacher's trader packages call against.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	Init("info", os.Stderr)
}

// Init (re)configures the package-level logger. level is one of
// debug|info|warn|error (case-insensitive); unrecognized values fall back
// to info.
func Init(level string, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log = zerolog.New(w).With().Timestamp().Logger()
}

func Debug(args ...interface{}) { log.Debug().Msg(sprint(args...)) }
func Info(args ...interface{})  { log.Info().Msg(sprint(args...)) }
func Warn(args ...interface{})  { log.Warn().Msg(sprint(args...)) }
func Error(args ...interface{}) { log.Error().Msg(sprint(args...)) }

func Debugf(format string, args ...interface{}) { log.Debug().Msgf(format, args...) }
func Infof(format string, args ...interface{})  { log.Info().Msgf(format, args...) }
func Warnf(format string, args ...interface{})  { log.Warn().Msgf(format, args...) }
func Errorf(format string, args ...interface{}) { log.Error().Msgf(format, args...) }

// With returns a child logger carrying a structured field, for call sites
// that want to tag every subsequent line with e.g. an account or strategy
// id without repeating it in every message.
func With(key string, value interface{}) zerolog.Logger {
	return log.With().Interface(key, value).Logger()
}

func sprint(args ...interface{}) string {
	if len(args) == 1 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	return fmt.Sprint(args...)
}
