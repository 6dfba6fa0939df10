package engine

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// Logger returns the package logger.
func Logger() zerolog.Logger {
	return logger
}

// eventLog mirrors structured run events into a log file inside the sandbox,
// so a sandbox archive is self-describing. Best-effort: a sandbox that cannot
// hold a log file does not block the run.
type eventLog struct {
	f   *os.File
	log zerolog.Logger
}

func openEventLog(sb Sandbox) *eventLog {
	f, err := os.OpenFile(sb.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return &eventLog{log: zerolog.Nop()}
	}
	return &eventLog{f: f, log: zerolog.New(f).With().Timestamp().Logger()}
}

func (e *eventLog) Log() *zerolog.Logger { return &e.log }

func (e *eventLog) Close() {
	if e.f != nil {
		_ = e.f.Close()
	}
}
