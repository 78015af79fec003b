package client

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// NewLogger builds the process logger. With a log file the output is
// rotated by size; otherwise it goes to stderr. The returned closer flushes
// and closes the file.
func NewLogger(level, path string) (*log.Logger, io.Closer) {
	logger := &log.Logger{
		Level: log.ParseLevel(level),
	}

	if path == "" {
		logger.Writer = &log.ConsoleWriter{
			Writer:      os.Stderr,
			ColorOutput: true,
		}
		return logger, nopCloser{}
	}

	fw := &log.FileWriter{
		Filename:     path,
		FileMode:     0600,
		MaxSize:      10 * 1024 * 1024,
		MaxBackups:   3,
		EnsureFolder: true,
		LocalTime:    true,
	}
	logger.Writer = fw
	return logger, fw
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
