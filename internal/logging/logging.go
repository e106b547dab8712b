// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelFromString maps a config level to zerolog. Unknown values fall back
// to warn.
func LevelFromString(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}

// Setup points the global logger at w. When toFile is set, logs go to the
// file at path instead, since the terminal belongs to the live display.
// The returned closer releases the file, if any.
func Setup(level string, toFile bool, path string, w io.Writer) (io.Closer, error) {
	var out io.Writer = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	var closer io.Closer = nopCloser{}

	if toFile {
		if path == "" {
			out = io.Discard
		} else {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, err
			}
			out = f
			closer = f
		}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(LevelFromString(level))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
